package tool

import (
	"errors"
	"slices"
	"testing"
)

func TestDefaultOptions(t *testing.T) {
	cases := map[Key]Options{
		Split:     SplitOptions{Ranges: "1-3"},
		Compress:  CompressOptions{Level: LevelMedium},
		Watermark: WatermarkOptions{Text: "CONFIDENTIAL", Position: PositionCenter},
		Merge:     NoOptions{For: Merge},
	}
	for key, want := range cases {
		if got := DefaultOptions(key); got != want {
			t.Errorf("%s: expected %#v, got %#v", key, want, got)
		}
	}
	for _, d := range Catalog() {
		opts := DefaultOptions(d.Key)
		if err := opts.Validate(); err != nil {
			t.Errorf("%s: default options invalid: %v", d.Key, err)
		}
		if opts.Tool() != d.Key {
			t.Errorf("%s: default options belong to %s", d.Key, opts.Tool())
		}
	}
}

func TestFieldsPerTool(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		want []Field
	}{
		{"split", SplitOptions{Ranges: "1-3,5"}, []Field{{"ranges", "1-3,5"}}},
		{"compress", CompressOptions{Level: LevelHigh}, []Field{{"level", "high"}}},
		{"unlock without password", UnlockOptions{}, nil},
		{"unlock with password", UnlockOptions{Password: "s3cret"}, []Field{{"password", "s3cret"}}},
		{"watermark", WatermarkOptions{Text: "DRAFT", Position: PositionTopLeft}, []Field{{"text", "DRAFT"}, {"position", "top-left"}}},
		{"no options", NoOptions{For: PDFToImage}, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.opts.Fields(); !slices.Equal(got, c.want) {
				t.Fatalf("expected fields %v, got %v", c.want, got)
			}
		})
	}
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(Compress, map[string]string{"level": "HIGH", "ranges": "9"})
	if err != nil || opts != (CompressOptions{Level: LevelHigh}) {
		t.Fatalf("compress: got %#v, %v", opts, err)
	}

	opts, err = ParseOptions(Split, map[string]string{})
	if err != nil || opts != (SplitOptions{Ranges: "1-3"}) {
		t.Fatalf("split defaults: got %#v, %v", opts, err)
	}

	opts, err = ParseOptions(Unlock, map[string]string{"password": " pw "})
	if err != nil || opts != (UnlockOptions{Password: " pw "}) {
		t.Fatalf("unlock keeps password verbatim: got %#v, %v", opts, err)
	}

	invalid := []struct {
		key    Key
		values map[string]string
	}{
		{Compress, map[string]string{"level": "extreme"}},
		{Watermark, map[string]string{"position": "bottom"}},
		{Watermark, map[string]string{"text": "  "}},
	}
	for _, c := range invalid {
		if _, err := ParseOptions(c.key, c.values); !errors.Is(err, ErrInvalidOptions) {
			t.Errorf("%s %v: expected ErrInvalidOptions, got %v", c.key, c.values, err)
		}
	}
}

func TestCheckOptions(t *testing.T) {
	compress, _ := Lookup("compress")
	if err := CheckOptions(compress, CompressOptions{Level: LevelLow}); err != nil {
		t.Fatalf("expected valid options, got %v", err)
	}
	if err := CheckOptions(compress, SplitOptions{Ranges: "1"}); !errors.Is(err, ErrOptionsMismatch) {
		t.Fatalf("expected ErrOptionsMismatch, got %v", err)
	}
	if err := CheckOptions(compress, nil); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions for nil, got %v", err)
	}
}

func TestParseRanges(t *testing.T) {
	got, err := ParseRanges("1-3, 5 ,8-10")
	if err != nil {
		t.Fatalf("parse ranges: %v", err)
	}
	if want := []PageRange{{1, 3}, {5, 5}, {8, 10}}; !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	for _, bad := range []string{"", "0", "3-1", "1-", "a", "1,,2", "-2"} {
		if _, err := ParseRanges(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
