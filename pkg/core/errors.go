package core

import "fmt"

// ConfigError reports an unusable setting. Field is the config key when known.
type ConfigError struct {
	Field string
	msg   string
}

func (e ConfigError) Error() string {
	if e.Field == "" {
		return "invalid config: " + e.msg
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.msg)
}

// ErrInvalidConfig creates a new configuration error
func ErrInvalidConfig(msg string) error {
	return ConfigError{msg: msg}
}

// ErrInvalidConfigf creates a new formatted configuration error
func ErrInvalidConfigf(format string, args ...interface{}) error {
	return ConfigError{msg: fmt.Sprintf(format, args...)}
}

// ErrInvalidField reports that one config key holds a bad value
func ErrInvalidField(field string, err error) error {
	return ConfigError{Field: field, msg: err.Error()}
}
