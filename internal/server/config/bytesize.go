package config

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
)

// ByteSize is a size in bytes written in human form ("2GiB", "500 MB").
// It implements pflag.Value and encoding.TextUnmarshaler.
type ByteSize int64

// String prefers the IEC form and falls back to plain bytes when the
// rounded form would not parse back to the same value.
func (b ByteSize) String() string {
	s := humanize.IBytes(uint64(b))
	if n, err := humanize.ParseBytes(s); err == nil && n == uint64(b) {
		return s
	}
	return strconv.FormatInt(int64(b), 10)
}

func (b *ByteSize) Set(s string) error {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return fmt.Errorf("parse size %q: %w", s, err)
	}
	*b = ByteSize(n)
	return nil
}

func (b *ByteSize) Type() string { return "size" }

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *ByteSize) UnmarshalText(text []byte) error {
	return b.Set(string(text))
}

func (b ByteSize) Int64() int64 { return int64(b) }
