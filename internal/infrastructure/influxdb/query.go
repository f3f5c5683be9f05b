package influxdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/attribute-processor/internal/symbols"
)

// ReadHistory returns the numeric readings of attribute between start and
// stop, oldest first. Text and vector readings are not part of it.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - attribute: Attribute name as published by the device
//   - start, stop: Half-open time range [start, stop)
//
// Returns:
//   - []symbols.ArchivedSample: Readings in time order (may be empty)
//   - error: ErrNotConnected, ErrQueryFailed, or a context error
func (h *History) ReadHistory(ctx context.Context, attribute string, start, stop time.Time) ([]symbols.ArchivedSample, error) {
	if !h.IsConnected() {
		return nil, ErrNotConnected
	}
	if !stop.After(start) {
		return nil, fmt.Errorf("%w: stop must be after start", ErrQueryFailed)
	}

	query := historyQuery(h.cfg.Bucket, h.measurement(), h.device, attribute, start, stop)
	result, err := h.reads.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close() //nolint:errcheck // Read-only result

	var samples []symbols.ArchivedSample
	for result.Next() {
		record := result.Record()
		v, ok := toFloat(record.Value())
		if !ok {
			continue
		}
		samples = append(samples, symbols.ArchivedSample{Time: record.Time(), Value: v})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return samples, nil
}

// historyQuery builds the Flux query for one attribute's numeric field.
func historyQuery(bucket, measurement, device, attribute string, start, stop time.Time) string {
	return fmt.Sprintf(`from(bucket: %s)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %s and r.device == %s and r.attribute == %s and r._field == %s)
  |> keep(columns: ["_time", "_value"])
  |> sort(columns: ["_time"])`,
		fluxString(bucket),
		start.UTC().Format(time.RFC3339Nano),
		stop.UTC().Format(time.RFC3339Nano),
		fluxString(measurement),
		fluxString(device),
		fluxString(attribute),
		fluxString(fieldValue),
	)
}

// fluxStringEscaper escapes the characters Flux treats specially inside
// string literals.
var fluxStringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "${", `\${`)

// fluxString quotes s as a Flux string literal.
func fluxString(s string) string {
	return `"` + fluxStringEscaper.Replace(s) + `"`
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
