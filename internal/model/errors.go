package model

import "errors"

// ErrNotFound is returned when a message is absent from the server or the
// cache.
var ErrNotFound = errors.New("not found")

// ErrInvalidArgument is returned for malformed input such as a zero UID.
var ErrInvalidArgument = errors.New("invalid argument")
