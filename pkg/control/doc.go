// Package control issues zone commands to lamps behind a connected
// bridge.
//
// A Controller wraps any CommandSender (a session.Session, or a
// connection.Supervisor for transparent reconnects) and exposes one
// method per protocol operation. Arguments are validated before
// anything touches the wire; out-of-domain values return
// ErrInvalidParameter.
//
// Zone and lamp type resolve per call: an explicit option wins over
// the controller default, which wins over the protocol default (all
// zones, RGBWW lamps):
//
//	ctrl := control.NewController(sess, control.Config{Zone: 2})
//	ctrl.LightOn(ctx)                      // zone 2
//	ctrl.LightOn(ctx, control.WithZone(0)) // all zones
package control
