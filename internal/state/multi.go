package state

import (
	"context"
	"errors"
	"fmt"
)

// Multi writes to a primary backend and any number of mirrors.
// Reads come from the primary, falling back to mirrors when the primary has
// no copy or fails.
type Multi struct {
	primary Backend
	mirrors []Backend
}

// NewMulti combines a primary backend with mirrors.
func NewMulti(primary Backend, mirrors ...Backend) *Multi {
	return &Multi{primary: primary, mirrors: mirrors}
}

// Save writes to every backend. All errors are joined.
func (m *Multi) Save(ctx context.Context, id string, blob []byte) error {
	var errs []error
	if err := m.primary.Save(ctx, id, blob); err != nil {
		errs = append(errs, fmt.Errorf("primary: %w", err))
	}
	for i, mirror := range m.mirrors {
		if err := mirror.Save(ctx, id, blob); err != nil {
			errs = append(errs, fmt.Errorf("mirror %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Load reads from the primary, then mirrors in order.
func (m *Multi) Load(ctx context.Context, id string) ([]byte, error) {
	blob, primaryErr := m.primary.Load(ctx, id)
	if primaryErr == nil && blob != nil {
		return blob, nil
	}
	for _, mirror := range m.mirrors {
		if b, err := mirror.Load(ctx, id); err == nil && b != nil {
			return b, nil
		}
	}
	return nil, primaryErr
}

// List lists the primary.
func (m *Multi) List(ctx context.Context) ([]Record, error) {
	return m.primary.List(ctx)
}

// Delete removes the session from every backend.
func (m *Multi) Delete(ctx context.Context, id string) error {
	errs := []error{m.primary.Delete(ctx, id)}
	for _, mirror := range m.mirrors {
		errs = append(errs, mirror.Delete(ctx, id))
	}
	return errors.Join(errs...)
}

// Close closes every backend.
func (m *Multi) Close() error {
	errs := []error{m.primary.Close()}
	for _, mirror := range m.mirrors {
		errs = append(errs, mirror.Close())
	}
	return errors.Join(errs...)
}
