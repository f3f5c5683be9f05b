// Package processor is the dynamic attribute engine.
//
// An Engine holds an immutable snapshot of the configured formulas (a
// Registry) and the symbol table they evaluate against. Attributes are
// evaluated on read; evaluation failures never propagate to the caller and
// are published instead as INVALID values carrying the last known reading.
//
// A read cycle (ReadAll) evaluates every attribute once, in declaration
// order, then derives the device state from the state formulas:
//
//	ALARM=Attr(T1)>70
//	OK=1
//
// The first state formula whose value is truthy selects the state. Formulas
// that fail count as not matched.
//
// Thread Safety: the engine expects serialized entry for evaluation
// (ReadAttribute, ReadAll, Evaluate). Configure may run concurrently with
// readers of published data (State, LastValues, Attributes); the snapshot
// is swapped atomically.
package processor
