package tool

import (
	"fmt"
	"strings"
)

// Field is one flat string form field sent alongside the uploaded files.
type Field struct {
	Name  string
	Value string
}

// Options is the per-tool option set. Each tool has exactly one concrete
// implementation, so options for one tool can never leak into another's form.
type Options interface {
	Tool() Key
	Validate() error
	Fields() []Field
}

// Level is a compression level.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Position is a watermark anchor.
type Position string

const (
	PositionTopLeft  Position = "top-left"
	PositionTopRight Position = "top-right"
	PositionCenter   Position = "center"
)

const (
	defaultRanges        = "1-3"
	defaultLevel         = LevelMedium
	defaultWatermarkText = "CONFIDENTIAL"
	defaultPosition      = PositionCenter
)

// NoOptions is used by tools that take no parameters.
type NoOptions struct {
	For Key
}

func (o NoOptions) Tool() Key       { return o.For }
func (o NoOptions) Validate() error { return nil }
func (o NoOptions) Fields() []Field { return nil }

// SplitOptions selects the pages to extract.
type SplitOptions struct {
	Ranges string
}

func (SplitOptions) Tool() Key { return Split }

func (o SplitOptions) Validate() error {
	if _, err := ParseRanges(o.Ranges); err != nil {
		return invalidOption("ranges", err.Error())
	}
	return nil
}

func (o SplitOptions) Fields() []Field {
	return []Field{{Name: "ranges", Value: o.Ranges}}
}

// CompressOptions picks the compression strength.
type CompressOptions struct {
	Level Level
}

func (CompressOptions) Tool() Key { return Compress }

func (o CompressOptions) Validate() error {
	switch o.Level {
	case LevelLow, LevelMedium, LevelHigh:
		return nil
	default:
		return invalidOption("level", fmt.Sprintf("%q is not one of low, medium, high", o.Level))
	}
}

func (o CompressOptions) Fields() []Field {
	return []Field{{Name: "level", Value: string(o.Level)}}
}

// UnlockOptions carries the optional document password.
type UnlockOptions struct {
	Password string
}

func (UnlockOptions) Tool() Key       { return Unlock }
func (UnlockOptions) Validate() error { return nil }

// Fields omits the password entirely when it is empty.
func (o UnlockOptions) Fields() []Field {
	if o.Password == "" {
		return nil
	}
	return []Field{{Name: "password", Value: o.Password}}
}

// WatermarkOptions stamps Text at Position on every page.
type WatermarkOptions struct {
	Text     string
	Position Position
}

func (WatermarkOptions) Tool() Key { return Watermark }

func (o WatermarkOptions) Validate() error {
	if strings.TrimSpace(o.Text) == "" {
		return invalidOption("text", "must not be empty")
	}
	switch o.Position {
	case PositionTopLeft, PositionTopRight, PositionCenter:
		return nil
	default:
		return invalidOption("position", fmt.Sprintf("%q is not one of top-left, top-right, center", o.Position))
	}
}

func (o WatermarkOptions) Fields() []Field {
	return []Field{
		{Name: "text", Value: o.Text},
		{Name: "position", Value: string(o.Position)},
	}
}

// DefaultOptions returns the option set a fresh tool page starts with.
func DefaultOptions(key Key) Options {
	switch key {
	case Split:
		return SplitOptions{Ranges: defaultRanges}
	case Compress:
		return CompressOptions{Level: defaultLevel}
	case Unlock:
		return UnlockOptions{}
	case Watermark:
		return WatermarkOptions{Text: defaultWatermarkText, Position: defaultPosition}
	default:
		return NoOptions{For: key}
	}
}

// ParseOptions builds the option set for key from loose string values (form
// posts, JSON bodies, CLI flags). Values missing from the map keep their
// defaults; keys irrelevant to the tool are ignored.
func ParseOptions(key Key, values map[string]string) (Options, error) {
	get := func(name string) (string, bool) {
		v, ok := values[name]
		return strings.TrimSpace(v), ok
	}

	opts := DefaultOptions(key)
	switch o := opts.(type) {
	case SplitOptions:
		if v, ok := get("ranges"); ok {
			o.Ranges = v
		}
		opts = o
	case CompressOptions:
		if v, ok := get("level"); ok && v != "" {
			o.Level = Level(strings.ToLower(v))
		}
		opts = o
	case UnlockOptions:
		// passwords are taken verbatim
		o.Password = values["password"]
		opts = o
	case WatermarkOptions:
		if v, ok := values["text"]; ok {
			o.Text = v
		}
		if v, ok := get("position"); ok && v != "" {
			o.Position = Position(strings.ToLower(v))
		}
		opts = o
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// CheckOptions verifies that opts belong to d and are valid.
func CheckOptions(d Descriptor, opts Options) error {
	if opts == nil {
		return fmt.Errorf("%w: nil options for %s", ErrInvalidOptions, d.Key)
	}
	if opts.Tool() != d.Key {
		return fmt.Errorf("%w: %s options for %s", ErrOptionsMismatch, opts.Tool(), d.Key)
	}
	return opts.Validate()
}
