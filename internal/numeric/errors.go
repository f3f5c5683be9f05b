package numeric

import "errors"

// ErrInvalidArgument is returned when a numeric helper is called with
// arguments it cannot work with.
var ErrInvalidArgument = errors.New("numeric: invalid argument")
