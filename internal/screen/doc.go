// Package screen defines the contract shared by every LCD panel driver and
// the change-detection used by drivers that support partial updates.
//
// A Device is created once, at discovery, and reused for the whole process
// lifetime. Open and Close only toggle the transport handle; the driver
// object itself is never destroyed. Callers select behaviour through the
// Device interface and never branch on the concrete driver type. The only
// capability distinction exposed is Descriptor.Virtual, which marks the
// software sink.
//
// # Error Taxonomy
//
//   - ErrTransport: an open, write, or read failed. Recoverable: the caller
//     closes the device and retries later.
//   - ErrProtocolMismatch: frame sizes disagree. Drivers fall back to a
//     full-frame update; never fatal.
//   - ErrNotOpen: a read was attempted on a closed handle.
//
// # Change Detection
//
// ChangedRegion compares two encoded frames word by word and returns the
// bounding rectangle of the changes, widened to 8-pixel column alignment
// and a 2-row vertical margin. Identical frames report no change, and the
// driver sends nothing.
package screen
