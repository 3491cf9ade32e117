// Package pixel converts images into the RGB565 wire format used by the
// supported LCD panels.
//
// Each pixel becomes one 16-bit word: 5 bits red, 6 bits green, 5 bits
// blue, packed as (r<<11)|(g<<5)|b. Words are stored high byte first,
// which is the byte-swapped form of a little-endian word array. Frames are
// row-major with no padding, so a w×h image always encodes to exactly
// w*h*2 bytes.
//
// Encode is pure and safe for concurrent use.
package pixel
