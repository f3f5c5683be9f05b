// Package property persists the formula properties of attribute processor
// devices in SQLite, together with a history of configuration loads.
//
// A device whose properties are stored here ignores the formula lists of
// its YAML configuration; the store is how operators change formulas
// without redeploying.
package property
