package domain

import "errors"

var (
	// ErrSourceNotFound is returned when a source handle or label is not in the catalog.
	ErrSourceNotFound = errors.New("source not found")

	// ErrCatalogUnavailable marks a catalog that cannot be read at all.
	// Queries treat it as "no results", never as a failure.
	ErrCatalogUnavailable = errors.New("source catalog unavailable")

	// ErrSchema marks a source file that lacks the required columns.
	ErrSchema = errors.New("source schema mismatch")

	// ErrQueryFailed is the single fatal error kind of the query path.
	ErrQueryFailed = errors.New("entrance query failed")
)
