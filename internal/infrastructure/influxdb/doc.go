// Package influxdb provides InfluxDB connectivity for the attribute processor.
//
// It wraps the official influxdb-client-go v2 library in a History scoped
// to one device. The History records fresh attribute readings and state
// transitions, and reads numeric readings back for the archiving formula
// module.
//
// # Data Layout
//
// One measurement (config influxdb.measurement, default "dynamic_attribute")
// with tags device, attribute and quality. Numeric and boolean readings are
// stored in the "value" field, text readings in "text". Vector readings are
// summarised by their length in "length" and are not readable as history.
// Failed and stale readings are not recorded.
//
// State transitions go to the "device_state" measurement with tags device
// and source and a "state" field.
//
// # Usage
//
//	history, err := influxdb.Connect(cfg.InfluxDB, cfg.Device.Name)
//	if err != nil {
//	    return err
//	}
//	defer history.Close()
//
//	history.WriteReading(reading)
//	samples, err := history.ReadHistory(ctx, "T1", start, stop)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking and batched; their errors arrive through the
// SetOnError callback. Queries block and honour the context.
package influxdb
