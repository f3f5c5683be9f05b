package device

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/nerrad567/attribute-processor/internal/processor"
)

// StatePayload is published on the state topic and pushed to live
// subscribers.
type StatePayload struct {
	Device    string    `json:"device"`
	State     string    `json:"state"`
	Status    string    `json:"status"`
	CycleID   string    `json:"cycle_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadCycle runs one read cycle and fans the result out to the bus, the
// value history and live subscribers.
//
// Returns:
//   - processor.Cycle: every reading plus the derived state
//   - error: processor.ErrNotConfigured before the first Reload
func (d *Device) ReadCycle(ctx context.Context) (processor.Cycle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.readTimeout)
	defer cancel()

	cycle, err := d.engine.ReadAll(ctx)
	if err != nil {
		return cycle, fmt.Errorf("read cycle: %w", err)
	}

	for _, v := range cycle.Values {
		d.publishValue(v)
	}
	if cycle.StateChanged {
		d.recordStateChange(ctx, cycle.State, cycle.Status, StateSourceCycle)
	}
	d.publishState(cycle.State, cycle.Status, cycle.ID)
	d.broadcast(EventCycle, cycle)

	d.logger.Debug("read cycle complete",
		"cycle", cycle.ID,
		"attributes", len(cycle.Values),
		"state", cycle.State,
		"duration", cycle.Duration,
	)
	return cycle, nil
}

// ReadAttribute evaluates and publishes one attribute.
func (d *Device) ReadAttribute(ctx context.Context, name string) (processor.EvaluatedValue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.readTimeout)
	defer cancel()

	v, err := d.engine.ReadAttribute(ctx, name)
	if err != nil {
		return v, err
	}
	d.publishValue(v)
	d.broadcast(EventValue, v)
	return v, nil
}

// publishValue sends a reading to the bus when it changed, and records
// fresh readings in the value history.
func (d *Device) publishValue(v processor.EvaluatedValue) {
	if d.values != nil {
		d.values.WriteReading(v)
	}

	d.pubMu.Lock()
	prev, seen := d.published[v.Name]
	changed := !seen || !sameReading(prev, v)
	if changed || d.publishUnchanged {
		d.published[v.Name] = v
	}
	d.pubMu.Unlock()

	if d.bus == nil || (!changed && !d.publishUnchanged) {
		return
	}
	topic := d.topics.DeviceAttribute(d.name, v.Name)
	if err := d.bus.PublishJSON(topic, v, true); err != nil {
		d.logger.Warn("publishing attribute failed", "attribute", v.Name, "error", err)
	}
}

// sameReading compares everything but the timestamp.
func sameReading(a, b processor.EvaluatedValue) bool {
	return a.Quality == b.Quality &&
		a.Error == b.Error &&
		a.Stale == b.Stale &&
		reflect.DeepEqual(a.Value, b.Value)
}

// publishState sends the state when it or its status text changed.
func (d *Device) publishState(state, status, cycleID string) {
	d.pubMu.Lock()
	changed := state != d.lastState || status != d.lastStatus
	d.lastState, d.lastStatus = state, status
	d.pubMu.Unlock()

	if !changed && !d.publishUnchanged {
		return
	}

	payload := StatePayload{
		Device:    d.name,
		State:     state,
		Status:    status,
		CycleID:   cycleID,
		Timestamp: d.now().UTC(),
	}
	d.broadcast(EventState, payload)

	if d.bus == nil {
		return
	}
	d.bus.ReportState(state, status)
	if err := d.bus.PublishJSON(d.topics.DeviceState(d.name), payload, true); err != nil {
		d.logger.Warn("publishing state failed", "state", state, "error", err)
	}
}

// recordStateChange appends to the state history stores.
func (d *Device) recordStateChange(ctx context.Context, state, status, source string) {
	if d.stateHistory != nil {
		if err := d.stateHistory.RecordStateChange(ctx, d.name, state, status, source); err != nil {
			d.logger.Warn("recording state change failed", "state", state, "error", err)
		}
	}
	if d.values != nil {
		d.values.WriteState(state, source, d.now())
	}
}

// StateHistory returns recent state changes, newest first.
func (d *Device) StateHistory(ctx context.Context, limit int) ([]StateHistoryEntry, error) {
	if d.stateHistory == nil {
		return nil, nil
	}
	return d.stateHistory.GetHistory(ctx, d.name, limit)
}
