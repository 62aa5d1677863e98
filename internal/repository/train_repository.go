package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/train-reservation/internal/model"
)

// TrainRepo is the MySQL-backed train catalog.  Catalog order is id order.
type TrainRepo struct {
	db *sql.DB
}

// NewTrainRepo returns a TrainRepo bound to db.
func NewTrainRepo(db *sql.DB) *TrainRepo { return &TrainRepo{db: db} }

const trainColumns = `id, name, source, destination, departure, arrival, total_seats, available_seats, fare`

func scanTrain(s rowScanner) (model.Train, error) {
	var t model.Train
	err := s.Scan(&t.ID, &t.Name, &t.Source, &t.Destination, &t.Departure, &t.Arrival,
		&t.TotalSeats, &t.AvailableSeats, &t.Fare)
	return t, err
}

// FindByRoute returns the trains from source to destination.  Stations are
// matched after trimming and lower-casing both sides.
func (r *TrainRepo) FindByRoute(ctx context.Context, source, destination string) ([]model.Train, error) {
	const q = `SELECT ` + trainColumns + ` FROM trains
               WHERE LOWER(TRIM(source)) = ? AND LOWER(TRIM(destination)) = ?
               ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, model.NormalizeStation(source), model.NormalizeStation(destination))
	if err != nil {
		return nil, wrap("find trains by route", err, nil)
	}
	defer rows.Close()
	out := make([]model.Train, 0)
	for rows.Next() {
		t, err := scanTrain(rows)
		if err != nil {
			return nil, wrap("scan train", err, nil)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("find trains by route", err, nil)
	}
	return out, nil
}

// GetByID loads one train.
func (r *TrainRepo) GetByID(ctx context.Context, trainID int64) (model.Train, error) {
	const q = `SELECT ` + trainColumns + ` FROM trains WHERE id = ?`
	t, err := scanTrain(r.db.QueryRowContext(ctx, q, trainID))
	if err != nil {
		return model.Train{}, wrap("get train", err, model.ErrTrainNotFound)
	}
	return t, nil
}

// AdjustAvailability applies available_seats += delta in a single
// conditional UPDATE, so the bound check and the write cannot interleave
// with another writer.  When no row changes the train is reloaded to tell
// a missing train from a capacity violation.
func (r *TrainRepo) AdjustAvailability(ctx context.Context, trainID int64, delta int) (model.Train, error) {
	const q = `UPDATE trains SET available_seats = available_seats + ?
               WHERE id = ? AND available_seats + ? BETWEEN 0 AND total_seats`
	res, err := r.db.ExecContext(ctx, q, delta, trainID, delta)
	if err != nil {
		return model.Train{}, wrap("adjust availability", err, nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Train{}, wrap("adjust availability", err, nil)
	}
	t, err := r.GetByID(ctx, trainID)
	if err != nil {
		return model.Train{}, err
	}
	if n == 0 && delta != 0 {
		return t, fmt.Errorf("%w: train %d available %d%+d, total %d",
			model.ErrCapacity, trainID, t.AvailableSeats, delta, t.TotalSeats)
	}
	return t, nil
}

// Seed inserts trains that are not yet present, leaving existing rows and
// their availability untouched.  It runs in one transaction.
func (r *TrainRepo) Seed(ctx context.Context, trains []model.Train) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("seed trains", err, nil)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	const q = `INSERT IGNORE INTO trains (` + trainColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, t := range trains {
		if _, err := tx.ExecContext(ctx, q, t.ID, t.Name, t.Source, t.Destination, t.Departure, t.Arrival,
			t.TotalSeats, t.AvailableSeats, t.Fare); err != nil {
			return wrap(fmt.Sprintf("seed train %d", t.ID), err, nil)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap("seed trains", err, nil)
	}
	committed = true
	return nil
}
