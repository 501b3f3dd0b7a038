package broker

import "sync"

// fanout duplicates payloads to every registered receiver. It backs
// the MQTT broker, where one transport subscription feeds any number
// of Subscribe callers.
//
// Delivery to a receiver is non-blocking: a full receiver drops the
// payload for that receiver only. closeAll ends every stream and
// rejects later registrations, which is how a dead transport
// propagates to subscribers.
type fanout struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan []byte
	closed bool

	// dropped counts per-receiver drops, for the owner to log.
	dropped uint64
}

func newFanout() *fanout {
	return &fanout{subs: make(map[int]chan []byte)}
}

func (f *fanout) register(buffer int) <-chan []byte {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan []byte, buffer)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	f.nextID++
	f.subs[f.nextID] = ch
	return ch
}

func (f *fanout) publish(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for _, ch := range f.subs {
		select {
		case ch <- payload:
		default:
			f.dropped++
		}
	}
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
}

func (f *fanout) droppedCount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}
