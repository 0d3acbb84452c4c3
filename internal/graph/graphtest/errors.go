package graphtest

import "errors"

var errTransient = errors.New("concurrent modification conflict")
