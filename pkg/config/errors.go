package config

import "errors"

// ErrInvalidConfig is returned by Validate and Load when a Config fails the
// construction-time constraints, before any socket is ever bound.
var ErrInvalidConfig = errors.New("config: invalid configuration")
