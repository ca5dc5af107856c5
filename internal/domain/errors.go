package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInfeasible       = errors.New("cannot construct box spread for requested period")
	ErrNoRateData       = errors.New("no rate data available")
	ErrMalformedPayload = errors.New("malformed broker payload")
	ErrUnknownBroker    = errors.New("unknown broker")
	ErrLockHeld         = errors.New("lock already held")
)
