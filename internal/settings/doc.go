// Package settings persists per-screen and application settings in SQLite.
//
// Screen settings (brightness, rotation, last theme) are keyed by screen
// identity. Monitor settings are a flat string map (last_screen, lang,
// startup, ...) merged on write. A screen that has never been saved reads
// back as DefaultScreen().
//
// Only the monitor service talks to this package; the display core never
// persists anything.
package settings
