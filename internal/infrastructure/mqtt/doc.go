// Package mqtt connects lcdcanvas to an MQTT broker.
//
// MQTT is an optional control and ingest path next to the HTTP API:
//
//   - lcdcanvas/system/status  retained online/offline, with an LWT for crashes
//   - lcdcanvas/display/state  retained display state (running, screen, brightness)
//   - lcdcanvas/display/event  loop failures and stops
//   - lcdcanvas/command/+      remote commands (display, brightness, rotation, screen)
//   - lcdcanvas/frame          PNG or JPEG frames pushed by a renderer
//
// The Client wraps paho.mqtt.golang with auto-reconnect, subscription
// restoration after reconnect and panic-safe handlers.
//
// Thread Safety:
//   - All Client methods are safe for concurrent use.
//   - Handlers run on paho goroutines and must not block for long.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Frame(), 0, func(topic string, payload []byte) error {
//	    return ingest(payload)
//	})
package mqtt
