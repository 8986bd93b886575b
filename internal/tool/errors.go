package tool

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTool     = errors.New("unknown tool")
	ErrOptionsMismatch = errors.New("options do not belong to tool")
	ErrInvalidOptions  = errors.New("invalid options")
)

func invalidOption(field, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidOptions, field, reason)
}
