// Package model defines the train and ticket records shared by the catalog,
// the ledger and the reservation engine, together with the error values
// they use to report failures.  Callers compare errors with errors.Is.
package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by both ErrTrainNotFound and ErrTicketNotFound.
var ErrNotFound = errors.New("not found")

var (
	// ErrTrainNotFound is returned when a train identifier is unknown.
	ErrTrainNotFound = fmt.Errorf("train %w", ErrNotFound)
	// ErrTicketNotFound is returned when a ticket identifier is unknown.
	ErrTicketNotFound = fmt.Errorf("ticket %w", ErrNotFound)
)

var (
	// ErrCapacity is returned when an availability adjustment would move a
	// train's available seats outside [0, total].
	ErrCapacity = errors.New("seat adjustment out of capacity bounds")

	// ErrNoSeatsAvailable is returned when booking a full train.
	ErrNoSeatsAvailable = errors.New("no seats available")

	// ErrNoSeatAvailable is returned by the ledger when every seat number
	// is taken even though the catalog reported capacity.  It signals that
	// the catalog and the ledger disagree.
	ErrNoSeatAvailable = errors.New("no free seat number despite reported availability")

	// ErrAlreadyCancelled is returned when cancelling a cancelled ticket.
	ErrAlreadyCancelled = errors.New("ticket already cancelled")

	// ErrTicketNotActive is returned when mutating a cancelled ticket.
	ErrTicketNotActive = errors.New("ticket is not active")

	// ErrStorage is matched by every *StorageError.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidInput is returned for malformed identifiers or contact
	// details.
	ErrInvalidInput = errors.New("invalid input")
)

// StorageError wraps a failure of the underlying persistence layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes every StorageError match ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// NewStorageError wraps err unless it is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
