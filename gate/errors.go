package gate

import "errors"

// ErrInvalidConfig is returned when the gate is built with invalid options
var ErrInvalidConfig = errors.New("invalid gate configuration")
