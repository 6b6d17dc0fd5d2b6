package plugin

import (
	"fmt"
	"io"
	"strings"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"gopkg.in/yaml.v3"
)

// Op is a set of operations a plugin supports.
type Op int

const (
	OpDecode Op = 1 << iota
	OpEncode
)

func (o Op) Has(op Op) bool {
	return o&op == op
}

func (o Op) String() string {
	var parts []string
	if o.Has(OpDecode) {
		parts = append(parts, "decode")
	}
	if o.Has(OpEncode) {
		parts = append(parts, "encode")
	}
	return strings.Join(parts, "|")
}

func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "decode":
		return OpDecode, nil
	case "encode":
		return OpEncode, nil
	}
	return 0, fmt.Errorf("unknown op %q", s)
}

// UnmarshalYAML reads a list such as [decode, encode].
func (o *Op) UnmarshalYAML(value *yaml.Node) error {
	var names []string
	if err := value.Decode(&names); err != nil {
		return err
	}
	var ops Op
	for _, n := range names {
		op, err := ParseOp(n)
		if err != nil {
			return err
		}
		ops |= op
	}
	*o = ops
	return nil
}

func (o Op) MarshalYAML() (interface{}, error) {
	var names []string
	if o.Has(OpDecode) {
		names = append(names, "decode")
	}
	if o.Has(OpEncode) {
		names = append(names, "encode")
	}
	return names, nil
}

// Capability declares what a plugin can do and for which MIME types.
// Priority only breaks ties between plugins; it says nothing about correctness.
type Capability struct {
	PluginID  string   `yaml:"plugin_id"`
	MimeTypes []string `yaml:"mime_types"`
	Ops       Op       `yaml:"ops"`
	Priority  int      `yaml:"priority"`
}

func (c Capability) Supports(mime string) bool {
	for _, m := range c.MimeTypes {
		if strings.EqualFold(m, mime) {
			return true
		}
	}
	return false
}

func (c Capability) validate() error {
	if c.PluginID == "" {
		return imgerr.New(imgerr.InvalidParameter, "capability", "missing plugin_id")
	}
	if len(c.MimeTypes) == 0 {
		return imgerr.New(imgerr.InvalidParameter, "capability", "plugin %s declares no mime types", c.PluginID)
	}
	if c.Ops == 0 {
		return imgerr.New(imgerr.InvalidParameter, "capability", "plugin %s declares no ops", c.PluginID)
	}
	return nil
}

type capabilityFile struct {
	Plugins []Capability `yaml:"plugins"`
}

// LoadCapabilities reads a capability table:
//
//	plugins:
//	  - plugin_id: png
//	    mime_types: [image/png]
//	    ops: [decode, encode]
//	    priority: 10
//
// JSON is valid YAML, so the same table can be supplied as JSON.
func LoadCapabilities(r io.Reader) ([]Capability, error) {
	var f capabilityFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, imgerr.Wrap(imgerr.Malformed, "load capabilities", err)
	}
	for _, c := range f.Plugins {
		if err := c.validate(); err != nil {
			return nil, err
		}
	}
	return f.Plugins, nil
}
