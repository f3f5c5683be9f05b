package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/attribute-processor/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// History records the readings and state transitions of one device and
// reads its numeric readings back for the archiving formula module.
//
// It implements device.HistoryWriter and symbols.ArchiveReader.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Writes are non-blocking and batched.
type History struct {
	client influxdb2.Client
	writes api.WriteAPI
	reads  api.QueryAPI
	cfg    config.InfluxDBConfig
	device string

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// Connect opens the history of device on the configured InfluxDB server.
//
// The server is pinged before the history is returned, so a reachable
// but unhealthy server fails here rather than on the first write.
//
// Parameters:
//   - cfg: InfluxDB configuration from config.yaml
//   - device: Device name, stored as the "device" tag of every point
//
// Returns:
//   - *History: Connected history ready for use
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the cause
func Connect(cfg config.InfluxDBConfig, device string) (*History, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := defaultBatchSize
	if cfg.BatchSize > 0 {
		batchSize = cfg.BatchSize
	}
	flushInterval := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flushInterval = time.Duration(cfg.FlushInterval) * time.Second
	}

	// #nosec G115 -- both values are positive
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval.Milliseconds())),
	)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	h := &History{
		client:    client,
		writes:    client.WriteAPI(cfg.Org, cfg.Bucket),
		reads:     client.QueryAPI(cfg.Org),
		cfg:       cfg,
		device:    device,
		connected: true,
	}
	go h.forwardWriteErrors(h.writes.Errors())
	return h, nil
}

// forwardWriteErrors hands async write failures to the OnError callback.
func (h *History) forwardWriteErrors(errs <-chan error) {
	for err := range errs {
		h.mu.RLock()
		callback := h.onError
		h.mu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// Close flushes buffered points and closes the connection.
func (h *History) Close() error {
	if h.client == nil {
		return nil
	}
	h.mu.Lock()
	h.connected = false
	h.mu.Unlock()

	h.writes.Flush()
	h.client.Close()
	return nil
}

// HealthCheck pings the server.
func (h *History) HealthCheck(ctx context.Context) error {
	if !h.IsConnected() {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := h.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// IsConnected reports the last known connection state.
func (h *History) IsConnected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// SetOnError sets the callback for failed batched writes. Writes are
// non-blocking, so this is the only place their errors surface.
func (h *History) SetOnError(callback func(err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = callback
}
