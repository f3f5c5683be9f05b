// Package config loads and validates the attribute processor configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with ATTRPROC_* environment variables
//   - Validation of required fields, collecting every problem
//   - Default value handling
//
// The device section carries the formula properties. They are the
// fallback used when the SQLite property store holds nothing for the
// device.
//
// Usage:
//
//	cfg, err := config.Load("configs/attrproc.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.Name)
package config
