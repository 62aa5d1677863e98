package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/train-reservation/internal/model"
)

// TicketRepo is the MySQL-backed ticket ledger.  Ticket ids come from the
// tickets table's AUTO_INCREMENT column, which never hands out an id twice.
// All timestamps are stored in UTC.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to db.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `id, train_id, passenger_name, passenger_email, passenger_phone, seat_number, fare, booked_at, status`

func scanTicket(s rowScanner) (model.Ticket, error) {
	var t model.Ticket
	var status string
	err := s.Scan(&t.ID, &t.TrainID, &t.PassengerName, &t.PassengerEmail, &t.PassengerPhone,
		&t.SeatNumber, &t.Fare, &t.BookedAt, &status)
	if err != nil {
		return t, err
	}
	t.Status = model.TicketStatus(status)
	if !t.Status.Valid() {
		return t, fmt.Errorf("ticket %d: unknown status %q", t.ID, status)
	}
	t.BookedAt = t.BookedAt.UTC()
	return t, nil
}

// NextSeatNumber returns the lowest seat in [1, total] not held by a
// BOOKED ticket on the train.
func (r *TicketRepo) NextSeatNumber(ctx context.Context, trainID int64, total int) (int, error) {
	const q = `SELECT seat_number FROM tickets
               WHERE train_id = ? AND status = 'BOOKED'
               ORDER BY seat_number`
	rows, err := r.db.QueryContext(ctx, q, trainID)
	if err != nil {
		return 0, wrap("load booked seats", err, nil)
	}
	defer rows.Close()
	next := 1
	for rows.Next() {
		var seat int
		if err := rows.Scan(&seat); err != nil {
			return 0, wrap("scan seat", err, nil)
		}
		if seat > next {
			break
		}
		if seat == next {
			next++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, wrap("load booked seats", err, nil)
	}
	if next > total {
		return 0, model.ErrNoSeatAvailable
	}
	return next, nil
}

// Insert stores t as BOOKED and returns the generated id.
func (r *TicketRepo) Insert(ctx context.Context, t model.Ticket) (int64, error) {
	const q = `INSERT INTO tickets (train_id, passenger_name, passenger_email, passenger_phone, seat_number, fare, booked_at, status)
               VALUES (?, ?, ?, ?, ?, ?, ?, 'BOOKED')`
	res, err := r.db.ExecContext(ctx, q, t.TrainID, t.PassengerName, t.PassengerEmail, t.PassengerPhone,
		t.SeatNumber, t.Fare, t.BookedAt.UTC())
	if err != nil {
		return 0, wrap("insert ticket", err, nil)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("insert ticket", err, nil)
	}
	return id, nil
}

// GetByID loads one ticket.
func (r *TicketRepo) GetByID(ctx context.Context, ticketID int64) (model.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = ?`
	t, err := scanTicket(r.db.QueryRowContext(ctx, q, ticketID))
	if err != nil {
		return model.Ticket{}, wrap("get ticket", err, model.ErrTicketNotFound)
	}
	return t, nil
}

// SetStatus cancels a BOOKED ticket.  The status guard in the WHERE clause
// makes the transition a single compare-and-set.
func (r *TicketRepo) SetStatus(ctx context.Context, ticketID int64, status model.TicketStatus) error {
	if status != model.StatusCancelled {
		return model.ErrInvalidInput
	}
	const q = `UPDATE tickets SET status = 'CANCELLED' WHERE id = ? AND status = 'BOOKED'`
	res, err := r.db.ExecContext(ctx, q, ticketID)
	if err != nil {
		return wrap("cancel ticket", err, nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("cancel ticket", err, nil)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, ticketID); err != nil {
		return err
	}
	return model.ErrAlreadyCancelled
}

// UpdateContactDetails rewrites the passenger fields of a BOOKED ticket.
// The connection counts matched rows (clientFoundRows), so zero rows means
// the ticket is missing or no longer BOOKED; a lookup tells the two apart.
func (r *TicketRepo) UpdateContactDetails(ctx context.Context, ticketID int64, name, email, phone string) error {
	const q = `UPDATE tickets SET passenger_name = ?, passenger_email = ?, passenger_phone = ?
               WHERE id = ? AND status = 'BOOKED'`
	res, err := r.db.ExecContext(ctx, q, name, email, phone, ticketID)
	if err != nil {
		return wrap("update passenger details", err, nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("update passenger details", err, nil)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, ticketID); err != nil {
		return err
	}
	return model.ErrTicketNotActive
}

// ListByPassengerEmail returns the passenger's tickets, oldest booking
// first.  Emails are compared case-insensitively.
func (r *TicketRepo) ListByPassengerEmail(ctx context.Context, email string) ([]model.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets
               WHERE LOWER(TRIM(passenger_email)) = LOWER(TRIM(?))
               ORDER BY booked_at, id`
	return r.list(ctx, "list tickets by email", q, email)
}

// ListByTrain returns every ticket issued on the train, oldest first.
func (r *TicketRepo) ListByTrain(ctx context.Context, trainID int64) ([]model.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE train_id = ? ORDER BY booked_at, id`
	return r.list(ctx, "list tickets by train", q, trainID)
}

// Remove deletes a ticket row; used to undo an incomplete booking.
func (r *TicketRepo) Remove(ctx context.Context, ticketID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, ticketID)
	if err != nil {
		return wrap("remove ticket", err, nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("remove ticket", err, nil)
	}
	if n == 0 {
		return model.ErrTicketNotFound
	}
	return nil
}

func (r *TicketRepo) list(ctx context.Context, op, q string, arg any) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, wrap(op, err, nil)
	}
	defer rows.Close()
	out := make([]model.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, wrap("scan ticket", err, nil)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err, nil)
	}
	return out, nil
}
