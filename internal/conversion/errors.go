package conversion

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks errors caused by conversion declarations rather
// than by the media being converted. They are never retried.
var ErrConfiguration = errors.New("conversion configuration error")

var (
	// ErrUnknownConversion is returned when a conversion name is not part of
	// the resolved set.
	ErrUnknownConversion = fmt.Errorf("%w: unknown conversion", ErrConfiguration)

	// ErrDuplicateConversion is returned when a model declares the same
	// conversion name twice.
	ErrDuplicateConversion = fmt.Errorf("%w: duplicate conversion", ErrConfiguration)
)
