// Package symbols builds the namespace formulas are evaluated against.
//
// A Table is an immutable snapshot holding:
//
//   - the builtin library (math, random, numeric signal helpers, the np and
//     time modules, the functional conversion helpers, quality constants and
//     the Dev* type wrappers),
//   - the archiving reader, when one is configured,
//   - extra modules named in configuration, resolved through a Registry of
//     statically linked providers,
//   - the device self-reference (Attr, Cmd, self and one callable per
//     device command), when an Accessor is supplied.
//
// Tables are produced by Builder.Build and never modified afterwards. A
// configuration reload builds a fresh table; callers swap the pointer.
//
// Extra-module entries use the forms:
//
//	stats               the provider as a module named stats
//	stats as st         the provider as a module named st
//	stats.*             every member bound at top level
//	stats.median        one member bound as median
//	stats.median as md  one member bound as md
//
// Entries rooted at a process-level name (sys, os, exec, ...) are rejected
// with ErrForbiddenModule before any lookup. Every failing entry is logged
// and skipped; the rest of the table is still built.
package symbols
