package broker

import "testing"

func TestFanoutDeliversToAllReceivers(t *testing.T) {
	t.Parallel()
	f := newFanout()
	a := f.register(4)
	b := f.register(4)

	f.publish([]byte("x"))
	if got := string(<-a); got != "x" {
		t.Fatalf("receiver a got %q", got)
	}
	if got := string(<-b); got != "x" {
		t.Fatalf("receiver b got %q", got)
	}
}

func TestFanoutDropsOnFullReceiver(t *testing.T) {
	t.Parallel()
	f := newFanout()
	slow := f.register(1)

	f.publish([]byte("1"))
	f.publish([]byte("2")) // slow is full, dropped for that receiver

	if got := f.droppedCount(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
	if got := string(<-slow); got != "1" {
		t.Fatalf("got %q", got)
	}
	select {
	case v := <-slow:
		t.Fatalf("unexpected extra payload %q", v)
	default:
	}
}

func TestFanoutCloseAllEndsStreams(t *testing.T) {
	t.Parallel()
	f := newFanout()
	ch := f.register(1)
	f.closeAll()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after closeAll")
	}
	// Late registration gets an already-ended stream.
	late := f.register(1)
	if _, ok := <-late; ok {
		t.Fatal("late registration got a live stream")
	}
	// Publishing after close must not panic.
	f.publish([]byte("ignored"))
}
