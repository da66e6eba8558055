package system

import (
	"fmt"
	"os"
)

// ErrMissingKey is wrapped by every failed config read.
var ErrMissingKey = fmt.Errorf("missing config key")

// MissingKeyError reports which configuration key was absent.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing config key: %s", e.Key)
}

func (e *MissingKeyError) Unwrap() error { return ErrMissingKey }

// Config is the capability boundary to a configuration source.
type Config interface {
	Read(key string) (string, error)
}

// EnvConfig reads environment variables, with an optional prefix
// prepended to every key.
type EnvConfig struct {
	Prefix string
}

func (c EnvConfig) Read(key string) (string, error) {
	v, ok := os.LookupEnv(c.Prefix + key)
	if !ok {
		return "", &MissingKeyError{Key: c.Prefix + key}
	}
	return v, nil
}

// MapConfig serves configuration from a fixed map. For tests.
type MapConfig map[string]string

func (c MapConfig) Read(key string) (string, error) {
	v, ok := c[key]
	if !ok {
		return "", &MissingKeyError{Key: key}
	}
	return v, nil
}
