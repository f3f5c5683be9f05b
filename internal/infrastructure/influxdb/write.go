package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/attribute-processor/internal/processor"
)

const (
	defaultMeasurement = "dynamic_attribute"

	// stateMeasurement holds one point per state transition.
	stateMeasurement = "device_state"
)

// Field names of a reading point.
const (
	fieldValue  = "value"
	fieldText   = "text"
	fieldLength = "length"
)

// WriteReading records a fresh attribute reading.
//
// Failed and stale readings carry no new information and are skipped,
// as are values with no point representation.
func (h *History) WriteReading(v processor.EvaluatedValue) {
	if v.Error != "" || v.Stale || !h.IsConnected() {
		return
	}
	fields := readingFields(v.Value)
	if fields == nil {
		return
	}
	h.writes.WritePoint(write.NewPoint(
		h.measurement(),
		map[string]string{
			"device":    h.device,
			"attribute": v.Name,
			"quality":   v.Quality.String(),
		},
		fields,
		v.Timestamp,
	))
}

// WriteState records a state transition and what caused it.
func (h *History) WriteState(state, source string, at time.Time) {
	if !h.IsConnected() {
		return
	}
	h.writes.WritePoint(write.NewPoint(
		stateMeasurement,
		map[string]string{"device": h.device, "source": source},
		map[string]interface{}{"state": state},
		at,
	))
}

func (h *History) measurement() string {
	if h.cfg.Measurement == "" {
		return defaultMeasurement
	}
	return h.cfg.Measurement
}

// readingFields maps a reading value onto point fields. Vectors are
// summarised by their length. It returns nil when the value has no
// representation.
func readingFields(value any) map[string]interface{} {
	switch v := value.(type) {
	case float64:
		return map[string]interface{}{fieldValue: v}
	case bool:
		f := 0.0
		if v {
			f = 1
		}
		return map[string]interface{}{fieldValue: f}
	case string:
		return map[string]interface{}{fieldText: v}
	case []float64:
		return map[string]interface{}{fieldLength: int64(len(v))}
	}
	return nil
}
