// Package api implements the HTTP control API and WebSocket event stream.
//
// Endpoints under /api/v1:
//
//	GET  /health                  liveness plus dependency checks
//	GET  /screens                 screens found by the last scan
//	POST /screens/rescan          rescan attached screens
//	GET  /screens/active          the active screen, 404 when none
//	PUT  /screens/active          select a screen ({"id": ""} clears)
//	GET  /screens/{id}/settings   persisted settings of one screen
//	PUT  /screens/{id}/settings   merge and persist settings
//	GET  /monitor/settings        application settings
//	PUT  /monitor/settings        merge application settings
//	GET  /display                 current display session
//	POST /display                 start or stop ({"on": true})
//	PUT  /display/brightness      {"value": 0..100}
//	PUT  /display/rotation        {"degrees": 0|90|180|270}
//	PUT  /frame                   upload the next frame (PNG, JPEG, ...)
//	GET  /preview.png             what the virtual screen last showed
//	GET  /renderer                renderer process status
//	GET  /events                  stored events (?screen=ID&limit=N)
//	POST /auth/ws-ticket          single-use WebSocket ticket
//	GET  /ws                      event stream
//
// The preview page is served at /preview/.
//
// # Event Stream
//
// Clients send {"op": "subscribe", "events": ["*"], "screen": "WCH32"} and
// get a "state" message with the current session, then "event" messages.
// Frame events are dropped for clients that fall behind; any other event
// that does not fit in a client's queue disconnects it.
//
// # Security
//
// When security.jwt.secret is set every route except /health requires an
// HS256 bearer token. Browsers cannot set headers on a WebSocket upgrade,
// so /ws takes a single-use ticket obtained from /auth/ws-ticket instead.
// With no secret the API is open and should only listen on loopback.
//
// # Graceful Degradation
//
// Only the monitor service is required. Without a frame sink uploads
// answer 503, without a preview screen /preview.png answers 404, and a
// missing renderer manager reports "disabled". Without an event history
// /events answers 503.
package api
