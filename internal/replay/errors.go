package replay

import "errors"

var (
	// ErrRunNotFound is returned when the run ID has no stored model run.
	ErrRunNotFound = errors.New("model run not found")

	// ErrNoOutcomeRecords is returned when the run's metric has no raw
	// records, so the period grid cannot be rebuilt.
	ErrNoOutcomeRecords = errors.New("no raw outcome records to rebuild from")
)
