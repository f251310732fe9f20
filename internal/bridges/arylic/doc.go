// Package arylic implements the Arylic/LinkPlay speaker bridge.
//
// The package speaks the device UART-over-TCP control protocol to networked
// speakers and exposes their state and commands to the rest of the gateway
// (MQTT, HTTP, WebSocket, history).
//
// # Architecture
//
//	┌──────────────┐   MQTT    ┌──────────────────────────────┐   TCP :8899
//	│  Broker / HA │◄─────────►│ Bridge ─ Controller ─ Conn.. │◄──────────► Speakers
//	└──────────────┘           └──────────────────────────────┘
//
// The layers, leaves first:
//
//   - Command model: tagged SentCommand / ReceiveCommand variants (command.go)
//   - Cursor: bounds-checked sequential reader over a byte buffer (cursor.go)
//   - Codec: frame encode/decode and payload dispatch (codec.go)
//   - Connection: one TCP session per speaker, read loop, serialised writes,
//     one-shot reply expectations (connection.go)
//   - Controller: live-connection registry, discovery, reconnect and ping
//     ticks (controller.go)
//   - Bridge / HealthReporter / HistoryRecorder: event sinks (bridge.go,
//     health.go, history.go)
//
// # Frame Format
//
//	MAGIC(18 96 18 20) LEN(u32 LE) SUM(u32 LE) RESERVED(8 x 00) PAYLOAD(LEN)
//
// The checksum is the sum of the payload bytes modulo 2^32. Payloads are
// ASCII token paths such as "MCU+MUT+001\n" or "AXX+MEA+DAT{...}&\n".
//
// # Known Limitations
//
// One socket read is decoded as at most one frame. Frames split across reads,
// or several frames packed into a single read, are not reassembled.
//
// # Thread Safety
//
// Connection and Controller are safe for concurrent use. Codec counters are
// atomic; a Codec may be shared.
//
// # References
//
//   - Arylic UART API: https://forum.arylic.com/t/latest-api-documents-and-uart-protocols/534
package arylic
