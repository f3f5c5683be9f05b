package property

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/attribute-processor/internal/processor"
)

// Property names as stored in device_properties.property.
const (
	keyDynamicAttributes = "dynamic_attributes"
	keyDynamicStates     = "dynamic_states"
	keyExtraModules      = "extra_modules"
	keySearchPaths       = "search_paths"
	keyDefaultState      = "default_state"
	keyChi2Warning       = "chi2_warning"
)

// historyLayout is fixed-width so loaded_at sorts as text.
const historyLayout = "2006-01-02T15:04:05.000000Z07:00"

// Repository defines property persistence. The SQLite implementation is
// used in production; device tests substitute a map.
type Repository interface {
	// Load returns the stored properties of device. found is false when
	// the store holds no rows for it.
	Load(ctx context.Context, device string) (props processor.Properties, found bool, err error)

	// Save replaces every stored property of device.
	Save(ctx context.Context, device string, props processor.Properties) error

	// Clear removes the stored properties, returning the device to its
	// file configuration.
	Clear(ctx context.Context, device string) error

	// RecordReload appends an entry to the reload history.
	RecordReload(ctx context.Context, rec ReloadRecord) error

	// ReloadHistory returns the newest limit entries for device, newest first.
	ReloadHistory(ctx context.Context, device string, limit int) ([]ReloadRecord, error)
}

// ReloadRecord describes one configuration load.
type ReloadRecord struct {
	ID         string    `json:"id"`
	Device     string    `json:"device"`
	Source     string    `json:"source"`
	Attributes int       `json:"attributes"`
	States     int       `json:"states"`
	Skipped    []string  `json:"skipped"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Load returns the stored properties of device in declaration order.
func (r *SQLiteRepository) Load(ctx context.Context, device string) (processor.Properties, bool, error) {
	var props processor.Properties
	if device == "" {
		return props, false, ErrInvalidDevice
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT property, value
		FROM device_properties
		WHERE device = ?
		ORDER BY property, position`, device)
	if err != nil {
		return props, false, fmt.Errorf("querying properties: %w", err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return props, false, fmt.Errorf("scanning property: %w", err)
		}
		found = true
		if err := apply(&props, key, value); err != nil {
			return props, false, err
		}
	}
	if err := rows.Err(); err != nil {
		return props, false, fmt.Errorf("iterating properties: %w", err)
	}
	return props, found, nil
}

func apply(props *processor.Properties, key, value string) error {
	switch key {
	case keyDynamicAttributes:
		props.DynamicAttributes = append(props.DynamicAttributes, value)
	case keyDynamicStates:
		props.DynamicStates = append(props.DynamicStates, value)
	case keyExtraModules:
		props.ExtraModules = append(props.ExtraModules, value)
	case keySearchPaths:
		props.SearchPaths = append(props.SearchPaths, value)
	case keyDefaultState:
		props.DefaultState = value
	case keyChi2Warning:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: chi2_warning %q", ErrInvalidProperty, value)
		}
		props.Chi2Warning = f
	default:
		return fmt.Errorf("%w: %s", ErrInvalidProperty, key)
	}
	return nil
}

// Save replaces every stored property of device in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, device string, props processor.Properties) error {
	if device == "" {
		return ErrInvalidDevice
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM device_properties WHERE device = ?", device); err != nil {
		return fmt.Errorf("clearing properties: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO device_properties (device, property, position, value, updated_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := r.now().UTC().Format(time.RFC3339)
	lists := []struct {
		key    string
		values []string
	}{
		{keyDynamicAttributes, props.DynamicAttributes},
		{keyDynamicStates, props.DynamicStates},
		{keyExtraModules, props.ExtraModules},
		{keySearchPaths, props.SearchPaths},
	}
	for _, l := range lists {
		for i, v := range l.values {
			if _, err := stmt.ExecContext(ctx, device, l.key, i, v, now); err != nil {
				return fmt.Errorf("inserting %s[%d]: %w", l.key, i, err)
			}
		}
	}
	if props.DefaultState != "" {
		if _, err := stmt.ExecContext(ctx, device, keyDefaultState, 0, props.DefaultState, now); err != nil {
			return fmt.Errorf("inserting default_state: %w", err)
		}
	}
	if props.Chi2Warning != 0 {
		v := strconv.FormatFloat(props.Chi2Warning, 'g', -1, 64)
		if _, err := stmt.ExecContext(ctx, device, keyChi2Warning, 0, v, now); err != nil {
			return fmt.Errorf("inserting chi2_warning: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing properties: %w", err)
	}
	return nil
}

// Clear removes every stored property of device.
func (r *SQLiteRepository) Clear(ctx context.Context, device string) error {
	if device == "" {
		return ErrInvalidDevice
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM device_properties WHERE device = ?", device); err != nil {
		return fmt.Errorf("clearing properties: %w", err)
	}
	return nil
}

// RecordReload appends rec to the reload history. An empty ID or time is
// filled in.
func (r *SQLiteRepository) RecordReload(ctx context.Context, rec ReloadRecord) error {
	if rec.Device == "" {
		return ErrInvalidDevice
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.LoadedAt.IsZero() {
		rec.LoadedAt = r.now()
	}
	if rec.Skipped == nil {
		rec.Skipped = []string{}
	}
	skipped, err := json.Marshal(rec.Skipped)
	if err != nil {
		return fmt.Errorf("marshalling skipped entries: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reload_history (id, device, source, attributes, states, skipped, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Device, rec.Source, rec.Attributes, rec.States, string(skipped),
		rec.LoadedAt.UTC().Format(historyLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting reload record: %w", err)
	}
	return nil
}

// ReloadHistory returns the newest limit records for device, newest first.
// A limit below one means 20.
func (r *SQLiteRepository) ReloadHistory(ctx context.Context, device string, limit int) ([]ReloadRecord, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device, source, attributes, states, skipped, loaded_at
		FROM reload_history
		WHERE device = ?
		ORDER BY loaded_at DESC
		LIMIT ?`, device, limit)
	if err != nil {
		return nil, fmt.Errorf("querying reload history: %w", err)
	}
	defer rows.Close()

	var out []ReloadRecord
	for rows.Next() {
		var rec ReloadRecord
		var skipped, loadedAt string
		if err := rows.Scan(&rec.ID, &rec.Device, &rec.Source, &rec.Attributes, &rec.States, &skipped, &loadedAt); err != nil {
			return nil, fmt.Errorf("scanning reload record: %w", err)
		}
		if err := json.Unmarshal([]byte(skipped), &rec.Skipped); err != nil {
			return nil, fmt.Errorf("unmarshalling skipped entries: %w", err)
		}
		if rec.LoadedAt, err = time.Parse(historyLayout, loadedAt); err != nil {
			return nil, fmt.Errorf("parsing loaded_at: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reload history: %w", err)
	}
	return out, nil
}
