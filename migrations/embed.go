// Package migrations embeds the lcdcanvas schema so the binary can create
// and upgrade its settings store without SQL files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
