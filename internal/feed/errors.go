package feed

import "errors"

var (
	ErrNotFound    = errors.New("data not found for this symbol/date")
	ErrRateLimited = errors.New("rate limited by data feed")
	ErrAuthFailed  = errors.New("data feed authentication failed")
)
