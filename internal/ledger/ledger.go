// Package ledger keeps ticket records in process memory.  Ticket ids come
// from a process-wide counter and are never handed out twice, even when a
// record is later removed.
package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/iliyamo/train-reservation/internal/model"
)

// Memory is a Ticket Ledger kept in process memory.  It is safe for
// concurrent use.
type Memory struct {
	lastID atomic.Int64

	mu      sync.RWMutex
	tickets map[int64]*model.Ticket
	byTrain map[int64]map[int64]struct{}
}

// NewMemory returns an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		tickets: make(map[int64]*model.Ticket),
		byTrain: make(map[int64]map[int64]struct{}),
	}
}

// NextSeatNumber returns the lowest seat in [1, total] that no BOOKED
// ticket on the train holds.
func (m *Memory) NextSeatNumber(_ context.Context, trainID int64, total int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	taken := make(map[int]bool)
	for id := range m.byTrain[trainID] {
		if t := m.tickets[id]; t.Active() {
			taken[t.SeatNumber] = true
		}
	}
	for seat := 1; seat <= total; seat++ {
		if !taken[seat] {
			return seat, nil
		}
	}
	return 0, model.ErrNoSeatAvailable
}

// Insert stores t as a BOOKED ticket under a fresh id and returns the id.
func (m *Memory) Insert(_ context.Context, t model.Ticket) (int64, error) {
	t.ID = m.lastID.Add(1)
	t.Status = model.StatusBooked

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = &t
	ids := m.byTrain[t.TrainID]
	if ids == nil {
		ids = make(map[int64]struct{})
		m.byTrain[t.TrainID] = ids
	}
	ids[t.ID] = struct{}{}
	return t.ID, nil
}

// GetByID returns a copy of the ticket.
func (m *Memory) GetByID(_ context.Context, ticketID int64) (model.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return model.Ticket{}, model.ErrTicketNotFound
	}
	return *t, nil
}

// SetStatus moves a ticket to status.  Only BOOKED -> CANCELLED is legal.
func (m *Memory) SetStatus(_ context.Context, ticketID int64, status model.TicketStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return model.ErrTicketNotFound
	}
	if status != model.StatusCancelled {
		return model.ErrInvalidInput
	}
	if t.Status == model.StatusCancelled {
		return model.ErrAlreadyCancelled
	}
	t.Status = status
	return nil
}

// UpdateContactDetails replaces the passenger fields of a BOOKED ticket.
func (m *Memory) UpdateContactDetails(_ context.Context, ticketID int64, name, email, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return model.ErrTicketNotFound
	}
	if !t.Active() {
		return model.ErrTicketNotActive
	}
	t.PassengerName = name
	t.PassengerEmail = email
	t.PassengerPhone = phone
	return nil
}

// ListByPassengerEmail returns the passenger's tickets, oldest booking
// first.  Emails are compared case-insensitively.
func (m *Memory) ListByPassengerEmail(_ context.Context, email string) ([]model.Ticket, error) {
	want := strings.ToLower(strings.TrimSpace(email))
	m.mu.RLock()
	out := make([]model.Ticket, 0)
	for _, t := range m.tickets {
		if strings.ToLower(strings.TrimSpace(t.PassengerEmail)) == want {
			out = append(out, *t)
		}
	}
	m.mu.RUnlock()
	sortByBooking(out)
	return out, nil
}

// ListByTrain returns every ticket issued on the train, oldest first.
func (m *Memory) ListByTrain(_ context.Context, trainID int64) ([]model.Ticket, error) {
	m.mu.RLock()
	out := make([]model.Ticket, 0, len(m.byTrain[trainID]))
	for id := range m.byTrain[trainID] {
		out = append(out, *m.tickets[id])
	}
	m.mu.RUnlock()
	sortByBooking(out)
	return out, nil
}

// Remove deletes a ticket record.  It exists to undo an Insert whose
// booking could not be completed; the id is not reused.
func (m *Memory) Remove(_ context.Context, ticketID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return model.ErrTicketNotFound
	}
	delete(m.byTrain[t.TrainID], ticketID)
	delete(m.tickets, ticketID)
	return nil
}

func sortByBooking(ts []model.Ticket) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].BookedAt.Equal(ts[j].BookedAt) {
			return ts[i].BookedAt.Before(ts[j].BookedAt)
		}
		return ts[i].ID < ts[j].ID
	})
}
