package device

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/attribute-processor/internal/processor"
	"github.com/nerrad567/attribute-processor/internal/property"
)

// Property sources recorded in the reload history.
const (
	SourceStore = "store"
	SourceFile  = "file"
)

// valuePruner is implemented by value stores that can drop readings of
// attributes that no longer exist.
type valuePruner interface {
	Prune(keep []string) (int, error)
}

// Reload rebuilds the engine from the property store, or from the file
// configuration when the store holds nothing for this device.
//
// Malformed formulas are skipped and listed in the returned record. An
// error leaves the previous configuration installed.
func (d *Device) Reload(ctx context.Context) (property.ReloadRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reloadLocked(ctx)
}

// SaveProperties stores props for this device and reloads from them.
func (d *Device) SaveProperties(ctx context.Context, props processor.Properties) (property.ReloadRecord, error) {
	if d.repo == nil {
		return property.ReloadRecord{}, ErrNoPropertyStore
	}
	if props.DefaultState != "" {
		if _, err := processor.NormalizeState(props.DefaultState); err != nil {
			return property.ReloadRecord{}, fmt.Errorf("default state: %w", err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.repo.Save(ctx, d.name, props); err != nil {
		return property.ReloadRecord{}, fmt.Errorf("saving properties: %w", err)
	}
	return d.reloadLocked(ctx)
}

// ClearProperties removes the stored properties and reloads from the file
// configuration.
func (d *Device) ClearProperties(ctx context.Context) (property.ReloadRecord, error) {
	if d.repo == nil {
		return property.ReloadRecord{}, ErrNoPropertyStore
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.repo.Clear(ctx, d.name); err != nil {
		return property.ReloadRecord{}, fmt.Errorf("clearing properties: %w", err)
	}
	return d.reloadLocked(ctx)
}

// ReloadHistory returns recent reloads, newest first.
func (d *Device) ReloadHistory(ctx context.Context, limit int) ([]property.ReloadRecord, error) {
	if d.repo == nil {
		return nil, ErrNoPropertyStore
	}
	return d.repo.ReloadHistory(ctx, d.name, limit)
}

func (d *Device) reloadLocked(ctx context.Context) (property.ReloadRecord, error) {
	props, source, err := d.loadProperties(ctx)
	if err != nil {
		return property.ReloadRecord{}, err
	}

	report, err := d.engine.Configure(props)
	if err != nil {
		return property.ReloadRecord{}, fmt.Errorf("configuring %s: %w", d.name, err)
	}

	rec := property.ReloadRecord{
		ID:         uuid.NewString(),
		Device:     d.name,
		Source:     source,
		Attributes: report.Attributes,
		States:     report.States,
		Skipped:    make([]string, 0, len(report.Skipped)),
		LoadedAt:   d.now().UTC(),
	}
	for _, e := range report.Skipped {
		rec.Skipped = append(rec.Skipped, e.Error())
	}

	if d.repo != nil {
		if err := d.repo.RecordReload(ctx, rec); err != nil {
			d.logger.Warn("recording reload failed", "error", err)
		}
	}
	d.pruneValues()

	d.pubMu.Lock()
	clear(d.published)
	d.pubMu.Unlock()

	state, status := d.engine.State()
	d.recordStateChange(ctx, state, status, StateSourceReload)
	d.publishState(state, status, "")
	d.broadcast(EventReload, rec)

	d.logger.Info("device reloaded",
		"source", source,
		"attributes", rec.Attributes,
		"states", rec.States,
		"skipped", len(rec.Skipped),
		"inputs", d.inputNames(),
	)
	return rec, nil
}

// loadProperties picks the property store over the file configuration.
func (d *Device) loadProperties(ctx context.Context) (processor.Properties, string, error) {
	if d.repo == nil {
		return d.fileProps, SourceFile, nil
	}
	props, found, err := d.repo.Load(ctx, d.name)
	if err != nil {
		return processor.Properties{}, "", fmt.Errorf("loading properties: %w", err)
	}
	if !found {
		return d.fileProps, SourceFile, nil
	}
	return props, SourceStore, nil
}

// pruneValues drops cached readings of attributes no longer configured.
func (d *Device) pruneValues() {
	p, ok := d.store.(valuePruner)
	if !ok {
		return
	}
	attrs := d.engine.Attributes()
	keep := make([]string, 0, len(attrs))
	for _, a := range attrs {
		keep = append(keep, a.Name)
	}
	removed, err := p.Prune(keep)
	if err != nil {
		d.logger.Warn("pruning cached values failed", "error", err)
		return
	}
	if removed > 0 {
		d.logger.Debug("pruned cached values", "removed", removed)
	}
}
