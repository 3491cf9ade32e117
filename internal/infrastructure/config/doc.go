// Package config loads config.yaml into a Config.
//
// Load reads the file, applies LCDCANVAS_* environment overrides and then
// validates the result. Overrides may also come from a .env file next to
// config.yaml; a variable already set in the process environment wins
// over the same key in .env. Secrets such as the MQTT password, the
// InfluxDB token and the JWT secret belong in the environment rather than
// the file.
//
// Defaults cover the serial QDTFT35 panel, the WCH32 USB panel and the
// display loop tunables, so an empty file gives a working setup. The SPI
// panel, MQTT, InfluxDB and mDNS stay off until enabled.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
