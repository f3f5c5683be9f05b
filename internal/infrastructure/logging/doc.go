// Package logging provides structured logging for the attribute processor.
//
// It wraps log/slog. Every record carries the service name, the version
// and, once configuration is loaded, the device name. Packages receive a
// component-tagged child logger and use it through their own small Logger
// interface.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, cfg.Device.Name, version)
//	logger.Component("device").Info("read cycle", "attributes", 12)
package logging
