// Package logging sets up the log/slog logger every component writes to.
//
// Records are JSON by default and text when logging.format is "text".
// Each one carries service and version fields; Component and Screen add
// the subsystem or panel driver. With logging.output set to "file" the log
// rotates by size via lumberjack:
//
//	logging:
//	  level: info
//	  output: file
//	  file:
//	    path: ./logs/lcdcanvas.log
//	    max_size: 1
//	    max_backups: 1
//
// The caller owns the returned Logger and must Close it on shutdown.
package logging
