// Package monitor is the control side of lcdcanvas.
//
// A Service owns the display scheduler and is the only component that
// combines it with the screen registry and persisted settings. Every
// control surface (HTTP API, WebSocket, MQTT commands) goes through it:
//
//   - LoadScreens rescans attached panels.
//   - SelectScreen makes a panel active, restores its saved rotation and
//     brightness and remembers it as last_screen.
//   - ScreenSettings/SetScreenSettings and MonitorSettings/SetMonitorSettings
//     read and write persisted settings; changes to the active screen are
//     applied immediately.
//   - ToggleDisplay starts or stops the display loop.
//
// Scheduler callbacks are turned into Events and fanned out to registered
// Notifiers. Notifiers are called from the display loop goroutine and must
// not block.
//
// Thread Safety:
//   - Control operations are serialized by the Service.
//   - DisplayState and the Notifier fan-out never wait on a control
//     operation, so scheduler callbacks cannot deadlock against them.
package monitor
