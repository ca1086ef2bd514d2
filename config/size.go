package config

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	KiB ByteSize = 1 << 10
	MiB ByteSize = 1 << 20
)

// ByteSize is a size in bytes written in humanized form, such as "10MiB" or
// "512 kB". It can be used as YAML value and as flag.
type ByteSize int64

func ParseByteSize(s string) (ByteSize, error) {
	size, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size '%s': %w", s, err)
	}
	if size > 1<<62 {
		return 0, fmt.Errorf("size '%s' is too large", s)
	}

	return ByteSize(size), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

func (b *ByteSize) Set(s string) error {
	size, err := ParseByteSize(s)
	if err != nil {
		return err
	}

	*b = size
	return nil
}

func (*ByteSize) Type() string {
	return "size"
}

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", value.Line)
	}

	return b.Set(value.Value)
}

func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}
