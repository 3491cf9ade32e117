// Package spipanel drives an ST7789-class RGB565 TFT wired straight to an
// SPI bus, as found on Raspberry Pi HATs and similar boards.
//
// The controller takes a column/row address window (CASET, RASET) followed
// by RAMWR and the RGB565 words of that window, high byte first. That is
// the same encoding the pixel package produces, so like the serial panel
// the driver keeps its last frame and only sends the region that changed.
//
// Bus and GPIO access go through periph.io. Pin and bus names are the
// periph.io registry names, for example "SPI0.0" and "GPIO25".
//
// Thread Safety:
//   - All Panel methods are safe for concurrent use.
package spipanel
