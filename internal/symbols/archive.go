package symbols

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/attribute-processor/internal/formula"
)

// ArchivedSample is one historical value.
type ArchivedSample struct {
	Time  time.Time
	Value float64
}

// ArchiveReader reads attribute history for the archiving module.
type ArchiveReader interface {
	ReadHistory(ctx context.Context, attribute string, start, stop time.Time) ([]ArchivedSample, error)
}

// defaultArchiveWindow is the look-back used when a formula gives none.
const defaultArchiveWindow = time.Hour

// archivingModule exposes values, times and last over a reader.
func archivingModule(r ArchiveReader) formula.Value {
	read := func(c formula.Call) ([]ArchivedSample, error) {
		name, err := c.Str(0, "attribute")
		if err != nil {
			return nil, err
		}
		secs, err := c.OptionalNumber(1, "seconds", defaultArchiveWindow.Seconds())
		if err != nil {
			return nil, err
		}
		if secs <= 0 {
			return nil, fmt.Errorf("%w: %s: window must be positive", formula.ErrType, c.Name)
		}
		stop := time.Now()
		start := stop.Add(-time.Duration(secs * float64(time.Second)))
		return r.ReadHistory(c.Context(), name, start, stop)
	}

	return formula.ModuleValue(formula.NewModule("archiving", members{
		"values": formula.Func("values", func(c formula.Call) (formula.Value, error) {
			samples, err := read(c)
			if err != nil {
				return formula.Value{}, err
			}
			out := make([]float64, len(samples))
			for i, s := range samples {
				out[i] = s.Value
			}
			return formula.Vector(out), nil
		}),
		"times": formula.Func("times", func(c formula.Call) (formula.Value, error) {
			samples, err := read(c)
			if err != nil {
				return formula.Value{}, err
			}
			out := make([]float64, len(samples))
			for i, s := range samples {
				out[i] = float64(s.Time.UnixNano()) / 1e9
			}
			return formula.Vector(out), nil
		}),
		"last": formula.Func("last", func(c formula.Call) (formula.Value, error) {
			samples, err := read(c)
			if err != nil {
				return formula.Value{}, err
			}
			if len(samples) == 0 {
				return formula.Null(), nil
			}
			return formula.Number(samples[len(samples)-1].Value), nil
		}),
	}))
}
