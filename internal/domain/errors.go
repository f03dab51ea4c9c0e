package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrVenueRejected    = errors.New("venue rejected modification")
	ErrVenueTimeout     = errors.New("venue call timed out")
	ErrStoreUnavailable = errors.New("persistence store unavailable")
	ErrGroupClosed      = errors.New("position group already closed")
	ErrBadSnapshot      = errors.New("unsupported snapshot schema version")
	ErrWSDisconnect     = errors.New("websocket disconnected")
)
