package duckdb

import "github.com/slipmail/slipmail/internal/model"

// ErrNotFound is returned when a stored dispatch run does not exist.
var ErrNotFound = model.ErrDispatchNotFound
