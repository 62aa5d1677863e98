// Package reservation implements the reservation engine: the only writer of
// train availability and ticket status.  It keeps the train catalog and the
// ticket ledger consistent with each other, so that for every train the
// available seats plus the BOOKED tickets always add up to the capacity.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/train-reservation/internal/model"
	"github.com/iliyamo/train-reservation/internal/monitoring"
	"github.com/iliyamo/train-reservation/internal/queue"
)

// Catalog stores train records.  AdjustAvailability must apply the delta
// atomically and reject results outside [0, total] with model.ErrCapacity.
type Catalog interface {
	FindByRoute(ctx context.Context, source, destination string) ([]model.Train, error)
	GetByID(ctx context.Context, trainID int64) (model.Train, error)
	AdjustAvailability(ctx context.Context, trainID int64, delta int) (model.Train, error)
}

// Ledger stores ticket records.
type Ledger interface {
	NextSeatNumber(ctx context.Context, trainID int64, total int) (int, error)
	Insert(ctx context.Context, t model.Ticket) (int64, error)
	GetByID(ctx context.Context, ticketID int64) (model.Ticket, error)
	SetStatus(ctx context.Context, ticketID int64, status model.TicketStatus) error
	UpdateContactDetails(ctx context.Context, ticketID int64, name, email, phone string) error
	ListByPassengerEmail(ctx context.Context, email string) ([]model.Ticket, error)
	ListByTrain(ctx context.Context, trainID int64) ([]model.Ticket, error)
	Remove(ctx context.Context, ticketID int64) error
}

// Publisher delivers ticket lifecycle events.  Delivery failures never
// change the outcome of the operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, ev queue.TicketEvent) error
}

// ErrRollbackFailed is joined into a booking error when the ticket
// inserted by a failed booking could not be removed again.  The booking
// then partially happened and the train needs reconciliation.
var ErrRollbackFailed = errors.New("booking rollback failed")

// Engine orchestrates bookings, cancellations and passenger updates.
type Engine struct {
	catalog   Catalog
	ledger    Ledger
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
	locks     trainLocks
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sends ticket events to p.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClock replaces time.Now for booking timestamps.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New returns an engine over the given catalog and ledger.
func New(catalog Catalog, ledger Ledger, opts ...Option) *Engine {
	if catalog == nil || ledger == nil {
		panic("reservation: nil catalog or ledger")
	}
	e := &Engine{
		catalog: catalog,
		ledger:  ledger,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "reservation")
	return e
}

// Search lists the trains between two stations.
func (e *Engine) Search(ctx context.Context, source, destination string) ([]model.Train, error) {
	return e.catalog.FindByRoute(ctx, source, destination)
}

// GetTrain returns one train from the catalog.
func (e *Engine) GetTrain(ctx context.Context, trainID int64) (model.Train, error) {
	return e.catalog.GetByID(ctx, trainID)
}

// Book reserves the lowest free seat on a train for the passenger.  Seat
// allocation, ticket insertion and the availability decrement run under
// the train's lock; if the decrement fails the inserted ticket is removed
// again so no BOOKED ticket exists without its seat deduction.
func (e *Engine) Book(ctx context.Context, trainID int64, name, email, phone string) (model.Ticket, error) {
	started := time.Now()
	t, train, err := e.book(ctx, trainID, name, email, phone)
	if err != nil {
		monitoring.ObserveOperation("book", monitoring.OutcomeFailed, started)
		return model.Ticket{}, err
	}
	monitoring.ObserveOperation("book", monitoring.OutcomeOK, started)
	e.publish(ctx, queue.NewTicketEvent(queue.EventTicketBooked, t, train, t.BookedAt))
	return t, nil
}

func (e *Engine) book(ctx context.Context, trainID int64, name, email, phone string) (model.Ticket, model.Train, error) {
	name, email, phone, err := normalizeContact(name, email, phone)
	if err != nil {
		return model.Ticket{}, model.Train{}, err
	}

	unlock := e.locks.lock(trainID)
	defer unlock()

	train, err := e.catalog.GetByID(ctx, trainID)
	if err != nil {
		return model.Ticket{}, model.Train{}, err
	}
	if train.AvailableSeats <= 0 {
		return model.Ticket{}, train, model.ErrNoSeatsAvailable
	}

	seat, err := e.ledger.NextSeatNumber(ctx, trainID, train.TotalSeats)
	if err != nil {
		if errors.Is(err, model.ErrNoSeatAvailable) {
			monitoring.IncConsistencyViolation(monitoring.ViolationNoSeatNumber)
			e.logger.Error("catalog reports free seats but every seat number is taken",
				"train_id", trainID, "available", train.AvailableSeats, "total", train.TotalSeats)
		}
		return model.Ticket{}, train, err
	}

	t := model.Ticket{
		TrainID:        trainID,
		PassengerName:  name,
		PassengerEmail: email,
		PassengerPhone: phone,
		SeatNumber:     seat,
		Fare:           train.Fare,
		BookedAt:       e.now().UTC(),
		Status:         model.StatusBooked,
	}
	t.ID, err = e.ledger.Insert(ctx, t)
	if err != nil {
		return model.Ticket{}, train, err
	}

	updated, err := e.catalog.AdjustAvailability(ctx, trainID, -1)
	if err != nil {
		if rbErr := e.ledger.Remove(ctx, t.ID); rbErr != nil {
			monitoring.IncConsistencyViolation(monitoring.ViolationRollbackFailed)
			e.logger.Error("booking left a ticket without a seat deduction",
				"train_id", trainID, "ticket_id", t.ID, "adjust_error", err, "rollback_error", rbErr)
			return model.Ticket{}, train, errors.Join(
				fmt.Errorf("book: adjust availability: %w", err),
				fmt.Errorf("%w: ticket %d: %w", ErrRollbackFailed, t.ID, rbErr))
		}
		e.logger.Warn("booking rolled back", "train_id", trainID, "ticket_id", t.ID, "error", err)
		return model.Ticket{}, train, fmt.Errorf("book: adjust availability: %w", err)
	}
	monitoring.SetAvailableSeats(trainID, updated.AvailableSeats)
	e.logger.Info("ticket booked", "ticket_id", t.ID, "train_id", trainID, "seat", seat)
	return t, updated, nil
}

// CancelResult describes a cancellation that took effect.
type CancelResult struct {
	TicketID int64 `json:"ticket_id"`
	TrainID  int64 `json:"train_id"`
	// SeatReleased is false when the ticket was cancelled but its seat
	// could not be returned to availability.  Warning then holds the
	// cause; Reconcile restores the seat.
	SeatReleased bool  `json:"seat_released"`
	Warning      error `json:"-"`
}

// Partial reports whether the cancellation only partially completed.
func (r CancelResult) Partial() bool { return !r.SeatReleased }

// Cancel moves a BOOKED ticket to CANCELLED and releases its seat.  An
// error means nothing changed.  If the ticket was cancelled but the seat
// release failed, Cancel returns a partial result and a nil error: the
// cancellation is irreversible and retrying it would only report
// model.ErrAlreadyCancelled.
func (e *Engine) Cancel(ctx context.Context, ticketID int64) (CancelResult, error) {
	started := time.Now()
	res, t, train, err := e.cancel(ctx, ticketID)
	switch {
	case err != nil:
		monitoring.ObserveOperation("cancel", monitoring.OutcomeFailed, started)
		return CancelResult{}, err
	case res.Partial():
		monitoring.ObserveOperation("cancel", monitoring.OutcomePartial, started)
	default:
		monitoring.ObserveOperation("cancel", monitoring.OutcomeOK, started)
	}
	ev := queue.NewTicketEvent(queue.EventTicketCancelled, t, train, e.now())
	ev.SeatReleased = res.SeatReleased
	e.publish(ctx, ev)
	return res, nil
}

func (e *Engine) cancel(ctx context.Context, ticketID int64) (CancelResult, model.Ticket, model.Train, error) {
	t, err := e.ledger.GetByID(ctx, ticketID)
	if err != nil {
		return CancelResult{}, t, model.Train{}, err
	}

	unlock := e.locks.lock(t.TrainID)
	defer unlock()

	// Re-read under the lock; a concurrent cancel may have won.
	if t, err = e.ledger.GetByID(ctx, ticketID); err != nil {
		return CancelResult{}, t, model.Train{}, err
	}
	if !t.Active() {
		return CancelResult{}, t, model.Train{}, model.ErrAlreadyCancelled
	}
	if err := e.ledger.SetStatus(ctx, ticketID, model.StatusCancelled); err != nil {
		return CancelResult{}, t, model.Train{}, err
	}
	t.Status = model.StatusCancelled

	res := CancelResult{TicketID: ticketID, TrainID: t.TrainID, SeatReleased: true}
	train, err := e.catalog.AdjustAvailability(ctx, t.TrainID, +1)
	if err != nil {
		res.SeatReleased = false
		res.Warning = err
		monitoring.IncConsistencyViolation(monitoring.ViolationSeatReleaseFailed)
		e.logger.Warn("ticket cancelled but seat was not released; reconcile the train",
			"ticket_id", ticketID, "train_id", t.TrainID, "error", err)
		if cur, gerr := e.catalog.GetByID(ctx, t.TrainID); gerr == nil {
			train = cur
		}
		return res, t, train, nil
	}
	monitoring.SetAvailableSeats(t.TrainID, train.AvailableSeats)
	e.logger.Info("ticket cancelled", "ticket_id", ticketID, "train_id", t.TrainID, "seat", t.SeatNumber)
	return res, t, train, nil
}

// UpdateDetails replaces the passenger contact details of a BOOKED ticket.
func (e *Engine) UpdateDetails(ctx context.Context, ticketID int64, name, email, phone string) error {
	started := time.Now()
	err := e.updateDetails(ctx, ticketID, name, email, phone)
	outcome := monitoring.OutcomeOK
	if err != nil {
		outcome = monitoring.OutcomeFailed
	}
	monitoring.ObserveOperation("update_details", outcome, started)
	return err
}

func (e *Engine) updateDetails(ctx context.Context, ticketID int64, name, email, phone string) error {
	name, email, phone, err := normalizeContact(name, email, phone)
	if err != nil {
		return err
	}
	t, err := e.ledger.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if !t.Active() {
		return model.ErrTicketNotActive
	}
	return e.ledger.UpdateContactDetails(ctx, ticketID, name, email, phone)
}

// GetTicket returns a ticket joined with its train.  A train missing from
// the catalog shows as model.Unknown.
func (e *Engine) GetTicket(ctx context.Context, ticketID int64) (model.TicketView, error) {
	t, err := e.ledger.GetByID(ctx, ticketID)
	if err != nil {
		return model.TicketView{}, err
	}
	train, err := e.lookupTrain(ctx, t.TrainID)
	if err != nil {
		return model.TicketView{}, err
	}
	return model.NewTicketView(t, train), nil
}

// ListTicketsForPassenger returns every ticket booked under email, oldest
// first, joined with train details.
func (e *Engine) ListTicketsForPassenger(ctx context.Context, email string) ([]model.TicketView, error) {
	tickets, err := e.ledger.ListByPassengerEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	trains := make(map[int64]*model.Train)
	out := make([]model.TicketView, 0, len(tickets))
	for _, t := range tickets {
		train, seen := trains[t.TrainID]
		if !seen {
			if train, err = e.lookupTrain(ctx, t.TrainID); err != nil {
				return nil, err
			}
			trains[t.TrainID] = train
		}
		out = append(out, model.NewTicketView(t, train))
	}
	return out, nil
}

// Reconcile recomputes a train's availability from its BOOKED tickets and
// corrects the catalog when the two disagree, as after a cancellation
// whose seat release failed.  It returns the applied correction.
func (e *Engine) Reconcile(ctx context.Context, trainID int64) (int, error) {
	unlock := e.locks.lock(trainID)
	defer unlock()

	train, err := e.catalog.GetByID(ctx, trainID)
	if err != nil {
		return 0, err
	}
	tickets, err := e.ledger.ListByTrain(ctx, trainID)
	if err != nil {
		return 0, err
	}
	booked := 0
	for _, t := range tickets {
		if t.Active() {
			booked++
		}
	}
	if booked > train.TotalSeats {
		monitoring.IncConsistencyViolation(monitoring.ViolationNoSeatNumber)
		return 0, fmt.Errorf("%w: train %d has %d booked tickets for %d seats",
			model.ErrCapacity, trainID, booked, train.TotalSeats)
	}
	delta := train.BookedSeats() - booked
	if delta == 0 {
		return 0, nil
	}
	updated, err := e.catalog.AdjustAvailability(ctx, trainID, delta)
	if err != nil {
		return 0, err
	}
	monitoring.IncConsistencyViolation(monitoring.ViolationReconciled)
	monitoring.SetAvailableSeats(trainID, updated.AvailableSeats)
	e.logger.Warn("train availability reconciled",
		"train_id", trainID, "delta", delta, "available", updated.AvailableSeats, "booked", booked)
	return delta, nil
}

func (e *Engine) lookupTrain(ctx context.Context, trainID int64) (*model.Train, error) {
	train, err := e.catalog.GetByID(ctx, trainID)
	if errors.Is(err, model.ErrNotFound) {
		e.logger.Warn("ticket references unknown train", "train_id", trainID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &train, nil
}

func (e *Engine) publish(ctx context.Context, ev queue.TicketEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn("ticket event not published", "type", ev.Type, "ticket_id", ev.TicketID, "error", err)
	}
}

func normalizeContact(name, email, phone string) (string, string, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)
	if name == "" || email == "" {
		return "", "", "", fmt.Errorf("%w: passenger name and email are required", model.ErrInvalidInput)
	}
	return name, email, phone, nil
}
