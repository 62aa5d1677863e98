// Package catalog holds the in-memory train catalog.  Train records are
// fixed after loading; only the available seat counter changes, and only
// through AdjustAvailability.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/iliyamo/train-reservation/internal/model"
)

// Memory is a Train Catalog kept in process memory.  It is safe for
// concurrent use.
type Memory struct {
	mu     sync.RWMutex
	order  []int64
	trains map[int64]*model.Train
}

// NewMemory builds a catalog from trains, preserving their order.  Every
// train must have a unique positive ID and a consistent seat count.
func NewMemory(trains []model.Train) (*Memory, error) {
	m := &Memory{
		order:  make([]int64, 0, len(trains)),
		trains: make(map[int64]*model.Train, len(trains)),
	}
	for i := range trains {
		t := trains[i]
		if err := validate(t); err != nil {
			return nil, err
		}
		if _, dup := m.trains[t.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate train id %d", t.ID)
		}
		m.trains[t.ID] = &t
		m.order = append(m.order, t.ID)
	}
	return m, nil
}

// FindByRoute returns the trains running from source to destination in
// catalog order.  No match yields an empty slice.
func (m *Memory) FindByRoute(_ context.Context, source, destination string) ([]model.Train, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Train, 0)
	for _, id := range m.order {
		if t := m.trains[id]; t.ServesRoute(source, destination) {
			out = append(out, *t)
		}
	}
	return out, nil
}

// GetByID returns a copy of the train with the given id.
func (m *Memory) GetByID(_ context.Context, trainID int64) (model.Train, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trains[trainID]
	if !ok {
		return model.Train{}, model.ErrTrainNotFound
	}
	return *t, nil
}

// AdjustAvailability applies available += delta atomically and returns the
// updated train.  Results outside [0, total] are rejected with
// model.ErrCapacity and leave the train untouched.
func (m *Memory) AdjustAvailability(_ context.Context, trainID int64, delta int) (model.Train, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trains[trainID]
	if !ok {
		return model.Train{}, model.ErrTrainNotFound
	}
	next := t.AvailableSeats + delta
	if next < 0 || next > t.TotalSeats {
		return *t, fmt.Errorf("%w: train %d available %d%+d, total %d",
			model.ErrCapacity, trainID, t.AvailableSeats, delta, t.TotalSeats)
	}
	t.AvailableSeats = next
	return *t, nil
}

func validate(t model.Train) error {
	switch {
	case t.ID <= 0:
		return fmt.Errorf("catalog: train %q: id must be positive", t.Name)
	case t.TotalSeats <= 0:
		return fmt.Errorf("catalog: train %d: total seats must be positive", t.ID)
	case t.AvailableSeats < 0 || t.AvailableSeats > t.TotalSeats:
		return fmt.Errorf("catalog: train %d: available seats %d outside [0, %d]", t.ID, t.AvailableSeats, t.TotalSeats)
	case t.Fare.IsNegative():
		return fmt.Errorf("catalog: train %d: fare must not be negative", t.ID)
	}
	return nil
}
