// Package mdns advertises the lcdcanvas API on the local network as a
// DNS-SD service, so renderers and dashboards can find it without a
// configured address.
//
// The service type is _lcdcanvas._tcp. TXT records carry the build
// version, the API base path, the active screen and whether the display
// loop is running; the last two are updated in place as they change.
//
// Thread Safety:
//   - All Advertiser methods are safe for concurrent use.
//
// Usage:
//
//	adv := mdns.New(cfg.MDNS, version)
//	if err := adv.Start(cfg.API.Port); err != nil {
//	    return err
//	}
//	defer adv.Close()
package mdns
