// Package repository implements the train catalog and the ticket ledger on
// MySQL.  Driver failures are wrapped in *model.StorageError so higher
// layers can tell them apart from domain errors; a missing row becomes the
// matching model not-found error.
package repository

import (
	"database/sql"
	"errors"

	"github.com/iliyamo/train-reservation/internal/model"
)

// wrap converts a driver error into the domain taxonomy.  sql.ErrNoRows
// maps to notFound; anything else becomes a storage error for op.
func wrap(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) && notFound != nil {
		return notFound
	}
	return model.NewStorageError(op, err)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
