package duckdb

import "github.com/slipmail/slipmail/internal/model"

var (
	_ model.Directory        = (*Store)(nil)
	_ model.DispatchRecorder = (*Store)(nil)
	_ model.DispatchHistory  = (*Store)(nil)
)
