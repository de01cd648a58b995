package abi

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Options are the compile-time switches consulted during selection.
type Options struct {
	OptLevel    int      `yaml:"opt_level"`
	RefWidth    RefWidth `yaml:"ref_width"`
	PointerBits int      `yaml:"pointer_bits"`
	BigEndian   bool     `yaml:"big_endian"`
	PAC         PAC      `yaml:"pac"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		OptLevel:    2,
		RefWidth:    RefWide,
		PointerBits: 64,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.OptLevel < 0 || o.OptLevel > 3 {
		return errors.Errorf("optimization level %d out of range 0-3", o.OptLevel)
	}
	if o.PointerBits != 32 && o.PointerBits != 64 {
		return errors.Errorf("pointer width %d must be 32 or 64", o.PointerBits)
	}
	return nil
}

// LoadOptions decodes a YAML options document on top of base. Keys that are
// absent keep the value from base.
func LoadOptions(r io.Reader, base Options) (Options, error) {
	opts := base
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && err != io.EOF {
		return base, errors.Wrap(err, "decoding options")
	}
	if err := opts.Validate(); err != nil {
		return base, err
	}
	return opts, nil
}

// UnmarshalYAML accepts the same spellings as the command-line flag.
func (w *RefWidth) UnmarshalYAML(n *yaml.Node) error {
	return w.Set(n.Value)
}

// UnmarshalYAML accepts the same spellings as the command-line flag.
func (p *PAC) UnmarshalYAML(n *yaml.Node) error {
	return p.Set(n.Value)
}
