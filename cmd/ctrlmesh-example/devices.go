package main

import (
	"fmt"

	"github.com/ctrlmesh/ctrlmesh/accessor"
)

// noDeviceBackend implements resolver.DeviceFactory by rejecting every
// register lookup: this example declares no Device nodes, but resolveNetwork
// still binds one method value per resolved type before dispatching on the
// network's actual feeder kind (§4.5 step 5), so the factory must exist
// even when nothing in the declared graph ever calls it.
type noDeviceBackend struct{}

func (noDeviceBackend) err(alias, path string) error {
	return fmt.Errorf("ctrlmesh-example: no device backend configured for %s:%s", alias, path)
}

func (n noDeviceBackend) Int8(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[int8], error) {
	return nil, n.err(alias, path)
}
func (n noDeviceBackend) Int16(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[int16], error) {
	return nil, n.err(alias, path)
}
func (n noDeviceBackend) Int32(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[int32], error) {
	return nil, n.err(alias, path)
}
func (n noDeviceBackend) Int64(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[int64], error) {
	return nil, n.err(alias, path)
}
func (n noDeviceBackend) Uint8(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[uint8], error) {
	return nil, n.err(alias, path)
}
func (n noDeviceBackend) Uint16(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[uint16], error) {
	return nil, n.err(alias, path)
}
func (n noDeviceBackend) Uint32(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[uint32], error) {
	return nil, n.err(alias, path)
}
func (n noDeviceBackend) Uint64(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[uint64], error) {
	return nil, n.err(alias, path)
}
func (n noDeviceBackend) Float32(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[float32], error) {
	return nil, n.err(alias, path)
}
func (n noDeviceBackend) Float64(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[float64], error) {
	return nil, n.err(alias, path)
}
func (n noDeviceBackend) Boolean8(alias, path string, count int, waitForNewData bool) (accessor.DeviceBackend[int8], error) {
	return nil, n.err(alias, path)
}
