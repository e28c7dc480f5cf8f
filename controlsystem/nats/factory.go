package nats

import (
	"strings"

	"github.com/ctrlmesh/ctrlmesh/accessor"
)

// Factory implements resolver.ControlSystemFactory over one supervised
// Client, mapping each public variable name to a subject under prefix.
// count/unit/description are accepted only to satisfy the factory
// interface — they describe the variable for other collaborators (XML
// export, engineering-unit conversion), neither of which is this package's
// concern (§1's explicit control-system-adapter-is-a-collaborator scoping).
type Factory struct {
	client *Client
	prefix string
}

// NewFactory creates a Factory publishing under subjects
// "<prefix>.<publicName-with-dots-for-slashes>".
func NewFactory(client *Client, prefix string) *Factory {
	return &Factory{client: client, prefix: prefix}
}

func (f *Factory) subject(publicName string) string {
	name := strings.ReplaceAll(publicName, "/", ".")
	if f.prefix == "" {
		return name
	}
	return f.prefix + "." + name
}

func (f *Factory) Int8(publicName string, _ int, feeding bool, _, _ string) (accessor.ControlSystemAdapter[int8], error) {
	return newAdapter[int8](f.client, f.subject(publicName), feeding), nil
}

func (f *Factory) Int16(publicName string, _ int, feeding bool, _, _ string) (accessor.ControlSystemAdapter[int16], error) {
	return newAdapter[int16](f.client, f.subject(publicName), feeding), nil
}

func (f *Factory) Int32(publicName string, _ int, feeding bool, _, _ string) (accessor.ControlSystemAdapter[int32], error) {
	return newAdapter[int32](f.client, f.subject(publicName), feeding), nil
}

func (f *Factory) Int64(publicName string, _ int, feeding bool, _, _ string) (accessor.ControlSystemAdapter[int64], error) {
	return newAdapter[int64](f.client, f.subject(publicName), feeding), nil
}

func (f *Factory) Uint8(publicName string, _ int, feeding bool, _, _ string) (accessor.ControlSystemAdapter[uint8], error) {
	return newAdapter[uint8](f.client, f.subject(publicName), feeding), nil
}

func (f *Factory) Uint16(publicName string, _ int, feeding bool, _, _ string) (accessor.ControlSystemAdapter[uint16], error) {
	return newAdapter[uint16](f.client, f.subject(publicName), feeding), nil
}

func (f *Factory) Uint32(publicName string, _ int, feeding bool, _, _ string) (accessor.ControlSystemAdapter[uint32], error) {
	return newAdapter[uint32](f.client, f.subject(publicName), feeding), nil
}

func (f *Factory) Uint64(publicName string, _ int, feeding bool, _, _ string) (accessor.ControlSystemAdapter[uint64], error) {
	return newAdapter[uint64](f.client, f.subject(publicName), feeding), nil
}

func (f *Factory) Float32(publicName string, _ int, feeding bool, _, _ string) (accessor.ControlSystemAdapter[float32], error) {
	return newAdapter[float32](f.client, f.subject(publicName), feeding), nil
}

func (f *Factory) Float64(publicName string, _ int, feeding bool, _, _ string) (accessor.ControlSystemAdapter[float64], error) {
	return newAdapter[float64](f.client, f.subject(publicName), feeding), nil
}

// Boolean8 shares int8's wire representation, matching
// resolver.ControlSystemFactory's own Boolean8-returns-int8 convention.
func (f *Factory) Boolean8(publicName string, _ int, feeding bool, _, _ string) (accessor.ControlSystemAdapter[int8], error) {
	return newAdapter[int8](f.client, f.subject(publicName), feeding), nil
}
