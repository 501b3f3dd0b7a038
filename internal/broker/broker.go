package broker

import (
	"context"
	"errors"
)

// Broker moves opaque JSON payloads between the bridge and the
// external handler.
//
// Publish pushes one payload toward the handler; key, when non-empty,
// is a routing/partition hint (the chat or user id) that preserves
// per-conversation ordering on backends that support it.
//
// Subscribe returns the handler-to-bridge stream. The channel closes
// when the stream ends; delivery is at-least-once on the durable
// backends, so consumers must tolerate redelivery after a restart.
type Broker interface {
	Publish(ctx context.Context, key string, payload []byte) error
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

var (
	// ErrConnect marks a failure to reach the backend at startup.
	// Fatal: callers abort rather than retry.
	ErrConnect = errors.New("broker: connect failed")

	// ErrPublish marks a single failed publish. The broker layer does
	// not retry; the caller decides.
	ErrPublish = errors.New("broker: publish failed")
)
