// Package panel serves the browser preview page as an embedded asset.
//
// The page shows what the virtual screen last displayed by polling
// /api/v1/preview.png, and lists display events received over the
// WebSocket. It carries basic controls for screen selection, start/stop,
// brightness and rotation. Everything is embedded with go:embed so the
// binary has no runtime file dependencies.
package panel
