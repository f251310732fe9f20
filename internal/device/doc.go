// Package device persists the speakers the gateway has talked to.
//
// A speaker becomes known once its device-info handshake completes. Known
// speakers are reloaded at start-up and join the controller's reconnect set,
// so a restart does not depend on mDNS answering quickly.
//
// # Architecture
//
//	┌──────────────────────┐      ┌──────────────────────┐
//	│  arylic.Controller   │─────▶│   device.Store       │
//	│  (handshake done)    │      │   (store.go)         │
//	└──────────────────────┘      └──────────┬───────────┘
//	                                         │
//	                                         ▼
//	                              ┌──────────────────────┐
//	                              │  SQLiteRepository    │
//	                              │  (known_devices)     │
//	                              └──────────────────────┘
//
// # Identity
//
// Rows are keyed by speaker name, the same key the controller registry
// uses. The (host, port) pair is also unique: when a speaker is renamed the
// row under its old name is replaced.
//
// # Thread Safety
//
// SQLiteRepository relies on database/sql for concurrency and is safe for
// concurrent use.
package device
