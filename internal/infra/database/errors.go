package database

import "errors"

var (
	ErrNotFound = errors.New("row not found")
	// ErrClaimLost means the queue row is no longer processing: it was
	// reclaimed, or another run already closed it.
	ErrClaimLost = errors.New("message is no longer claimed")
)
