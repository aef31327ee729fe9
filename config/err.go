package config

import (
	"github.com/ezrec/atic/translate"
)

var f = translate.From

// ErrConfig reports a configuration key with an unusable value.
type ErrConfig string

func (err ErrConfig) Error() string {
	return f("invalid configuration value for %v", string(err))
}

// ErrConfigUnknown reports a key the configuration does not define.
type ErrConfigUnknown string

func (err ErrConfigUnknown) Error() string {
	return f("unknown configuration key %v", string(err))
}
