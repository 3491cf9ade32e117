// Package render is the boundary between lcdcanvas and whatever produces
// the images to show.
//
// Images arrive asynchronously (HTTP upload, MQTT message, a supervised
// renderer process) and are parked in a Slot. The display loop pulls from
// the Slot once per cycle. Only the newest image is kept; a producer that
// outpaces the panel simply overwrites frames nobody saw.
package render
