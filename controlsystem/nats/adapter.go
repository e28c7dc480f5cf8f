package nats

import (
	"github.com/nats-io/nats.go"

	"github.com/ctrlmesh/ctrlmesh/accessor"
	"github.com/ctrlmesh/ctrlmesh/ctrlerrors"
	"github.com/ctrlmesh/ctrlmesh/types"
)

// Adapter implements accessor.ControlSystemAdapter[T] over one NATS
// subject. Feeding adapters only ever publish; receiving adapters lazily
// subscribe on the first Receive call, buffering the latest few messages so
// a slow consumer sees the newest value rather than blocking the publisher.
type Adapter[T comparable] struct {
	client  *Client
	subject string
	feeding bool

	sub  *nats.Subscription
	msgs chan []byte
}

func newAdapter[T comparable](client *Client, subject string, feeding bool) *Adapter[T] {
	return &Adapter[T]{client: client, subject: subject, feeding: feeding, msgs: make(chan []byte, 8)}
}

func (a *Adapter[T]) ensureSubscribed() error {
	if a.sub != nil {
		return nil
	}
	sub, err := a.client.subscribe(a.subject, func(msg *nats.Msg) {
		select {
		case a.msgs <- msg.Data:
		default:
			// Backlog full: drop the oldest buffered message so the newest
			// one always gets through (§4.1's "overwrite" push semantics).
			select {
			case <-a.msgs:
			default:
			}
			a.msgs <- msg.Data
		}
	})
	if err != nil {
		return err
	}
	a.sub = sub
	return nil
}

// Publish implements accessor.ControlSystemAdapter.
func (a *Adapter[T]) Publish(buf *types.Buffer[T]) error {
	data, err := encodeBuffer(buf)
	if err != nil {
		return ctrlerrors.WrapInvalid(err, "nats.Adapter", "Publish", a.subject)
	}
	return a.client.Publish(a.subject, data)
}

// Receive implements accessor.ControlSystemAdapter. blocking=true waits for
// the next message on the subject; blocking=false returns immediately with
// ok=false if none is buffered.
func (a *Adapter[T]) Receive(blocking bool) (*types.Buffer[T], bool, error) {
	if err := a.ensureSubscribed(); err != nil {
		return nil, false, ctrlerrors.WrapTransient(err, "nats.Adapter", "Receive", a.subject)
	}
	if blocking {
		data := <-a.msgs
		buf, err := decodeBuffer[T](data)
		return buf, true, err
	}
	select {
	case data := <-a.msgs:
		buf, err := decodeBuffer[T](data)
		return buf, true, err
	default:
		return nil, false, nil
	}
}

var _ accessor.ControlSystemAdapter[int32] = (*Adapter[int32])(nil)
