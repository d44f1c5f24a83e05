package storage

import "errors"

var (
	// ErrMissingURL is returned when a listing without a URL is saved.
	// The URL is the row key; a row without one can never be merged.
	ErrMissingURL = errors.New("listing has no URL")

	// ErrNoColumns is returned when a CSV write would produce a file
	// without any valid header columns.
	ErrNoColumns = errors.New("no valid csv columns")

	// ErrDatabaseNotFound is returned when opening an existing database
	// is requested but no database file is present.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrNoPendingListings is returned when a deep-only run finds no
	// stored listings that still need a detail visit.
	ErrNoPendingListings = errors.New("no listings pending deep search")
)
