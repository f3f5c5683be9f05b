package formula

import (
	"context"
	"fmt"
)

// Env resolves identifiers during evaluation. Lookup returns an error
// wrapping ErrUndefined for unknown names; any other error aborts the
// evaluation and is reported as-is inside the EvalError.
type Env interface {
	Lookup(ctx context.Context, name string) (Value, error)
}

// MapEnv is an Env backed by a fixed map.
type MapEnv map[string]Value

// Lookup implements Env.
func (m MapEnv) Lookup(_ context.Context, name string) (Value, error) {
	if v, ok := m[name]; ok {
		return v, nil
	}
	return Value{}, fmt.Errorf("%w: %s", ErrUndefined, name)
}

// ChainEnv consults each Env in order and returns the first hit.
type ChainEnv []Env

// Lookup implements Env.
func (c ChainEnv) Lookup(ctx context.Context, name string) (Value, error) {
	for _, env := range c {
		v, err := env.Lookup(ctx, name)
		if err == nil {
			return v, nil
		}
		if !isUndefined(err) {
			return Value{}, err
		}
	}
	return Value{}, fmt.Errorf("%w: %s", ErrUndefined, name)
}
