package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/attribute-processor/internal/formula"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/mqtt"
)

// Request is the JSON body of a bus request. Every field is optional.
//
//	read:    {"attribute": "T1"} reads one attribute, {} runs a full cycle
//	reload:  {}
//	command: {"command": "SetInput", "args": ["Raw", 8]}
type Request struct {
	ID        string `json:"id,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	Command   string `json:"command,omitempty"`
	Args      []any  `json:"args,omitempty"`
}

// Response is published on the response topic for every request.
type Response struct {
	ID     string `json:"id"`
	Verb   string `json:"verb"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// Start subscribes to the input and request topics. It is a no-op without
// a bus.
func (d *Device) Start() error {
	if d.bus == nil {
		return nil
	}
	if err := d.bus.Subscribe(d.topics.AllDeviceInputs(d.name), d.handleInput); err != nil {
		return fmt.Errorf("subscribing to inputs: %w", err)
	}
	if err := d.bus.Subscribe(d.topics.AllDeviceRequests(d.name), d.handleRequest); err != nil {
		return fmt.Errorf("subscribing to requests: %w", err)
	}
	d.logger.Info("device listening on bus", "device", d.name)
	return nil
}

// Stop releases the input and request topics so no request reaches the
// device while it shuts down.
func (d *Device) Stop() error {
	if d.bus == nil {
		return nil
	}
	return errors.Join(
		d.bus.Unsubscribe(d.topics.AllDeviceInputs(d.name)),
		d.bus.Unsubscribe(d.topics.AllDeviceRequests(d.name)),
	)
}

// handleInput stores an input published by a peer. JSON payloads are
// decoded; anything else is taken as a string.
func (d *Device) handleInput(topic string, payload []byte) error {
	name, ok := d.topics.ParseInput(d.name, topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrInvalidInput, topic)
	}
	v, err := decodeInput(payload)
	if err != nil {
		return fmt.Errorf("input %s: %w", name, err)
	}
	return d.SetInput(name, v)
}

func decodeInput(payload []byte) (formula.Value, error) {
	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return formula.String(string(payload)), nil
	}
	v, err := formula.FromNative(raw)
	if err != nil {
		return formula.Value{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return v, nil
}

// handleRequest runs a request and publishes the response.
func (d *Device) handleRequest(topic string, payload []byte) error {
	verb, ok := d.topics.ParseRequest(d.name, topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrInvalidRequest, topic)
	}

	var req Request
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*d.readTimeout)
	defer cancel()

	resp := Response{ID: req.ID, Verb: verb}
	result, err := d.execute(ctx, verb, req)
	if err != nil {
		resp.Error = err.Error()
		d.logger.Debug("bus request failed", "verb", verb, "id", req.ID, "error", err)
	} else {
		resp.OK = true
		resp.Result = result
	}

	return d.bus.PublishJSON(d.topics.DeviceResponse(d.name, req.ID), resp, false)
}

func (d *Device) execute(ctx context.Context, verb string, req Request) (any, error) {
	switch verb {
	case mqtt.VerbRead:
		if req.Attribute != "" {
			return d.ReadAttribute(ctx, req.Attribute)
		}
		return d.ReadCycle(ctx)
	case mqtt.VerbReload:
		return d.Reload(ctx)
	case mqtt.VerbCommand:
		args := make([]formula.Value, len(req.Args))
		for i, a := range req.Args {
			v, err := formula.FromNative(a)
			if err != nil {
				return nil, fmt.Errorf("%w: argument %d: %w", ErrInvalidRequest, i, err)
			}
			args[i] = v
		}
		v, err := d.InvokeCommand(ctx, req.Command, args)
		if err != nil {
			return nil, err
		}
		return v.Native(), nil
	}
	return nil, fmt.Errorf("%w: unknown verb %q", ErrInvalidRequest, verb)
}
