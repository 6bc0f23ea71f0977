package keyfence

import "errors"

// ErrInvalidOption is returned when an option value is invalid
var ErrInvalidOption = errors.New("invalid option")
