package utils

import (
	"github.com/pkg/errors"
)

// ErrEmptyMeshID is returned when a mesh is registered without an identifier.
var ErrEmptyMeshID = errors.New("mesh id must not be empty")

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError(expected interface{}, actual interface{}) error {
	return errors.Errorf("expected %T but got %T", expected, actual)
}

// NewOutOfRangeConfigError describes a config value that will be clamped to a usable one.
func NewOutOfRangeConfigError(field string, got, using interface{}) error {
	return errors.Errorf("%s: %v is out of range, using %v", field, got, using)
}

// NewUnknownSplitStrategyError is used when a split strategy name is not recognised.
func NewUnknownSplitStrategyError(name string) error {
	return errors.Errorf("unknown split strategy %q, expected one of sah, center, average", name)
}

// PrefixError prepends a location, such as a config path, to an error message.
func PrefixError(prefix string, err error) error {
	if prefix == "" || err == nil {
		return err
	}
	return errors.Wrap(err, prefix)
}
