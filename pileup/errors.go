package pileup

import "fmt"

// ConfigError wraps a problem with command-line configuration (§6, §7):
// callers should exit 1.
type ConfigError struct{ msg string }

func (e *ConfigError) Error() string { return e.msg }

// NewConfigError builds a ConfigError.
func NewConfigError(format string, args ...interface{}) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// InputError wraps a problem with input data (missing/corrupt BAM or FASTA,
// missing index) (§6, §7): callers should exit 2.
type InputError struct{ msg string }

func (e *InputError) Error() string { return e.msg }

// NewInputError builds an InputError.
func NewInputError(format string, args ...interface{}) error {
	return &InputError{msg: fmt.Sprintf(format, args...)}
}
