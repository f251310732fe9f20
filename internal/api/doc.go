// Package api implements the HTTP facade and WebSocket event stream for the
// Arylic gateway.
//
// This package provides:
//   - Command endpoints that map one GET request to one speaker command
//   - Request/reply endpoints that wait for the speaker's answer with a
//     bounded request timeout
//   - A WebSocket hub that streams device events to subscribed clients
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Routes
//
//	GET /arylic                               live devices
//	GET /arylic/{device}/mute                 mute
//	GET /arylic/{device}/unmute               unmute
//	GET /arylic/{device}/play                 play
//	GET /arylic/{device}/pause                pause
//	GET /arylic/{device}/playpause[?state=]   toggle, or PLAY/PAUSE
//	GET /arylic/{device}/volume/{level}       volume 0..100
//	GET /arylic/{device}/device-info          awaits DeviceInfo
//	GET /arylic/{device}/metadata             awaits Data
//	GET /arylic/{device}/status               awaits PlayInfo
//	GET /arylic/events                        WebSocket event stream
//	GET /api/v1/health                        gateway health
//
// Device names match case-insensitively. An unknown device is a 404; a reply
// that does not arrive within the request timeout is a 504.
//
// # WebSocket
//
// Clients send {"type":"subscribe","payload":{"channels":[...]}} to choose
// channels: device.available, device.event, device.discovered, or "*" for
// all of them.
package api
