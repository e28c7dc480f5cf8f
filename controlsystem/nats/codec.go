package nats

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ctrlmesh/ctrlmesh/types"
)

// wire format: a 2-word big-endian header (channels, samples) followed by
// each channel's samples, in order, at the fixed size binary.Write derives
// from T's underlying kind. Chosen over the teacher's own encoding/json (used
// for its key-value snapshots in natsclient/kv.go) because every payload
// here is a homogeneous numeric array of known shape — exactly the case
// encoding/binary exists for, with none of JSON's per-field overhead on a
// value that may be published at sensor rate.
func encodeBuffer[T comparable](buf *types.Buffer[T]) ([]byte, error) {
	var out bytes.Buffer
	header := [2]uint32{uint32(buf.Channels), uint32(buf.Samples)}
	if err := binary.Write(&out, binary.BigEndian, header); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	for i, row := range buf.Data {
		if err := binary.Write(&out, binary.BigEndian, row); err != nil {
			return nil, fmt.Errorf("encode channel %d: %w", i, err)
		}
	}
	return out.Bytes(), nil
}

func decodeBuffer[T comparable](data []byte) (*types.Buffer[T], error) {
	r := bytes.NewReader(data)
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	buf := types.NewBuffer[T](int(header[0]), int(header[1]))
	for i := range buf.Data {
		if err := binary.Read(r, binary.BigEndian, buf.Data[i]); err != nil {
			return nil, fmt.Errorf("decode channel %d: %w", i, err)
		}
	}
	return buf, nil
}
