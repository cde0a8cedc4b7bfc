// Package yeelight provides a Go client for networked lights that speak the
// line-delimited JSON control protocol on TCP port 55443.
//
// # Overview
//
// The library encodes typed commands into the device's wire format, writes
// them over a persistent TCP connection and reads back the stream of
// newline-terminated JSON messages until the reply that belongs to the
// request arrives. Property-change notifications and stale replies that
// share the stream are skipped.
//
// # Protocol
//
// Every message is one JSON object followed by "\r\n":
//
//   - Request:      {"id":1,"method":"set_bright","params":[50,"smooth",500]}
//   - Reply:        {"id":1,"result":["ok"]}
//   - Error reply:  {"id":1,"error":{"code":-1,"message":"unsupported method"}}
//   - Notification: {"method":"props","params":{"power":"on"}}
//
// Request ids are assigned by the Session, start at 0 and are never reused.
//
// # Connection Flow
//
//  1. Connect dials the device (default port: 55443)
//  2. Each Send/Execute takes the next request id and writes one line
//  3. Lines are read until the reply with the same id arrives
//  4. End of stream, I/O errors and non-JSON lines break the session
//
// # Quick Start
//
//	s, err := yeelight.Connect(ctx, "192.168.1.7:55443")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	b, _ := yeelight.NewBrightness(80)
//	_, err = s.Execute(ctx, yeelight.SetBright(yeelight.Main, b, yeelight.Smooth, 500))
//
//	warm, _ := yeelight.Temperature(2700)
//	_, err = s.Execute(ctx, yeelight.SetColor(yeelight.Main, warm, yeelight.Smooth, 500))
//
//	props, _ := yeelight.GetProp("power", "bright", "ct")
//	reply, err := s.Execute(ctx, props)
//
// # Supported Features
//
//   - RGB, color temperature and hue/saturation colors
//   - Brightness, power and power modes, toggle, saved defaults
//   - Relative adjustments (set_adjust, adjust_bright, adjust_ct, adjust_color)
//   - Color flows and scenes
//   - Sleep timer (cron_add, cron_get, cron_del)
//   - Music mode, device name, property reads
//   - Background light variants (bg_*) on supported lamps
//   - Arbitrary methods via Session.Send
//
// # Thread Safety
//
// A Session is safe for concurrent use. Round trips are serialised by a
// mutex, so only one request is ever in flight on a connection. For a
// long-lived owner that reconnects after failures, see package controller.
package yeelight
