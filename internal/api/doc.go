// Package api implements the HTTP REST API and WebSocket server of the
// attribute processor.
//
// This package provides:
//   - REST endpoints to read attributes, run cycles and evaluate formulas
//   - Property management (store, clear, reload) and reload/state history
//   - A WebSocket hub relaying cycle, value, state, reload and input events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server is a thin surface over one device host. Every handler calls
// through the Device interface, so reads, cycles and reloads are serialised
// by the device exactly as scheduled cycles and bus requests are. The hub
// implements device.Broadcaster and is handed to the device at startup.
//
// # Live Events
//
// A client connects to the WebSocket path, optionally with channels and
// attributes query parameters, and first receives a hello frame naming
// the device and its channels. Event frames carry a sequence number that
// is shared by all channels; a gap means the client's queue overflowed.
// Subscribe and unsubscribe frames change the channels, and the attribute
// filter that narrows value events.
//
// # Graceful Degradation
//
// The server operates without a property store: reads, cycles and reloads
// from the configuration file work, only property writes fail with 409.
package api
