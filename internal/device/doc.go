// Package device hosts one attribute processor device.
//
// A Device owns a processor.Engine and everything around it: the plain
// input attributes formulas read with Attr(), the commands formulas call
// with Cmd(), the read-cycle schedule, property reloads, and fan-out of
// each cycle to the bus, the value history and live subscribers.
//
// # Concurrency
//
// Read cycles, single-attribute reads and reloads are serialised by the
// device mutex, one at a time in arrival order. Inputs and commands have
// their own locks and never take the device mutex, so formulas evaluated
// inside a cycle can call them.
//
// # Property Sources
//
// Reload prefers the property store. When the store holds nothing for the
// device, the formulas from the configuration file are used. Every reload
// is appended to the reload history with its source.
package device
