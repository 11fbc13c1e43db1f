package config

import "errors"

var (
	errEmpty           = errors.New("must not be empty")
	errFraction        = errors.New("must be in (0, 1]")
	errPositive        = errors.New("must be positive")
	errNonNegative     = errors.New("must not be negative")
	errLessThanDefault = errors.New("must be >= default_context_lines")
)
