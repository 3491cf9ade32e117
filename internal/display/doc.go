// Package display runs the continuous acquire-render-transmit loop that
// keeps the active LCD panel up to date.
//
// A Scheduler owns the session: the selected screen, its brightness and
// rotation, the running flag, and the consecutive error count. A single
// mutex guards all of it and every device call. The loop goroutine and the
// control API (Select, SetBrightness, SetRotation, Start, Stop) synchronise
// only through that mutex, which is never held across a sleep or a render
// request. Each cycle drives whichever screen is selected when it begins,
// so selecting another screen moves the session there. After every
// acquisition the loop re-checks the selection and drops a frame rendered
// for a screen that is no longer active.
//
// # State Machine
//
//	Idle ──Start──▶ Starting ──loop up──▶ Running ──Stop/limit/clear──▶ Stopping ──▶ Idle
//
// A Start while Starting or Running is a no-op. A loop marks itself
// Stopping under the mutex as soon as it decides to exit, so a Start in
// that window waits for it and launches a new loop.
//
// # Failure Policy
//
// Any failure while reopening, rendering, or displaying closes the device
// and counts one error. A driver panic is recovered and counted as an
// ErrTransport failure. The loop sleeps RetryDelay and tries again. When
// the count exceeds ErrorLimit the loop stops and OnFailure is called once
// with ErrExhaustedRetries. A successful cycle resets the count.
//
// # Pacing
//
// A cycle that finished within TargetInterval sleeps for the remainder,
// but at least MinInterval. A slower cycle sleeps SlowCycleDelay.
package display
