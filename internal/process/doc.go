// Package process supervises an external renderer program.
//
// lcdcanvas does not draw anything itself. A deployment can name a
// renderer command in config; the Manager runs it, feeds its stdout and
// stderr into the structured log line by line, and restarts it with
// exponential backoff when it exits. The renderer is told where to deliver
// frames through environment variables (see FrameURLEnv) and pushes images
// to the HTTP API or MQTT.
//
// An optional staleness watchdog (FrameAge + StaleAfter) kills a renderer
// that is still running but has stopped producing frames, so a hung
// renderer is restarted like a crashed one.
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "renderer",
//	    Binary:           "/usr/local/bin/status-renderer",
//	    RestartOnFailure: true,
//	    Env:              []string{process.FrameURLEnv + "=http://127.0.0.1:8090/api/v1/frame"},
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
