package event

import "errors"

var errPanicked = errors.New("event handler panicked")
