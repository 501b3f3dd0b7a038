package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ratatoskr/pkg/backoff"
	"ratatoskr/pkg/logx"
)

const (
	inPipeName  = "in.pipe"
	outPipeName = "out.pipe"

	maxPipeBackoff = 30 * time.Second
)

// PipeDirResolver exposes the per-user pipe directories. Implemented
// by the auth gate, which owns the user list.
type PipeDirResolver interface {
	UserCount() int
	PipeDir(userIndex int) (string, bool)
}

// UserPipeRouter fans messages out to per-user pipe pairs: each user
// gets their own in.pipe for commands from the platform and out.pipe
// for responses. Responses from all users merge into one stream; the
// only ordering guarantee is within a single user's pipe.
type UserPipeRouter struct {
	users PipeDirResolver
	log   logx.Logger

	// readers feed in; the forwarder drains it into an unbounded
	// queue behind Responses so no reader ever blocks on a slow
	// consumer.
	in  chan []byte
	out chan []byte
}

func NewUserPipeRouter(users PipeDirResolver, log logx.Logger) *UserPipeRouter {
	return &UserPipeRouter{
		users: users,
		log:   log.With(logx.String("broker", "userpipe")),
		in:    make(chan []byte),
		out:   make(chan []byte),
	}
}

// Responses is the merged stream of lines read from every user's
// out.pipe. Closed when all readers have stopped.
func (r *UserPipeRouter) Responses() <-chan []byte { return r.out }

// Route writes payload to the user's in.pipe. The pipe opens per call
// so a recreated pipe (user process restart) never strands a stale
// handle. Failures are returned, not retried.
func (r *UserPipeRouter) Route(ctx context.Context, userIndex int, payload []byte) error {
	dir, ok := r.users.PipeDir(userIndex)
	if !ok {
		return fmt.Errorf("userpipe: no user at index %d", userIndex)
	}
	path := filepath.Join(dir, inPipeName)

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("userpipe: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("userpipe: write %s: %w", path, err)
	}
	r.log.Debug("routed message", logx.Int("user_index", userIndex), logx.String("pipe", path))
	return nil
}

// StartReaders spawns one reader loop per configured user plus the
// forwarder that merges their lines into Responses.
func (r *UserPipeRouter) StartReaders(ctx context.Context) {
	n := r.users.UserCount()
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		dir, ok := r.users.PipeDir(i)
		if !ok {
			done <- struct{}{}
			continue
		}
		go func(idx int, dir string) {
			defer func() { done <- struct{}{} }()
			r.readLoop(ctx, idx, filepath.Join(dir, outPipeName))
		}(i, dir)
	}

	go func() {
		for i := 0; i < n; i++ {
			<-done
		}
		close(r.in)
	}()
	go forwardUnbounded(r.in, r.out)
}

func (r *UserPipeRouter) readLoop(ctx context.Context, idx int, path string) {
	log := r.log.With(logx.Int("user_index", idx), logx.String("pipe", path))
	bo := backoff.New(pipeOpenRetryDelay, maxPipeBackoff)
	for {
		if ctx.Err() != nil {
			return
		}
		f, err := os.Open(path)
		if err != nil {
			log.Debug("out pipe not available, retrying",
				logx.Err(err), logx.Duration("backoff", bo.Current()))
			if bo.Sleep(ctx) != nil {
				return
			}
			bo.Advance()
			continue
		}
		bo.Reset()
		if !forwardLines(ctx, f, r.in) {
			f.Close()
			return
		}
		f.Close()
	}
}

// UserResolver additionally maps a platform sender to a user index.
// The auth gate implements both halves.
type UserResolver interface {
	PipeDirResolver
	Check(senderID int64, username string) (int, bool)
}

// UserPipes adapts the router to the Broker interface: Publish resolves
// the addressed user from the envelope's sender and routes to that
// user's in.pipe; Subscribe merges every user's out.pipe.
type UserPipes struct {
	router *UserPipeRouter
	users  UserResolver
}

func NewUserPipes(users UserResolver, log logx.Logger) *UserPipes {
	return &UserPipes{router: NewUserPipeRouter(users, log), users: users}
}

func (u *UserPipes) Publish(ctx context.Context, key string, payload []byte) error {
	senderID, err := senderIDFromEnvelope(payload)
	if err != nil {
		return fmt.Errorf("userpipe: %w", err)
	}
	idx, ok := u.users.Check(senderID, "")
	if !ok {
		return fmt.Errorf("userpipe: no user bound to sender %d", senderID)
	}
	return u.router.Route(ctx, idx, payload)
}

func (u *UserPipes) Subscribe(ctx context.Context) (<-chan []byte, error) {
	u.router.StartReaders(ctx)
	return u.router.Responses(), nil
}

// senderIDFromEnvelope digs the platform sender out of an inbound
// envelope; every inbound payload kind carries one as sender_id or
// user_id.
func senderIDFromEnvelope(payload []byte) (int64, error) {
	var env struct {
		MessageType struct {
			Data struct {
				SenderID int64  `json:"sender_id"`
				UserID   *int64 `json:"user_id"`
			} `json:"data"`
		} `json:"message_type"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return 0, fmt.Errorf("decode envelope: %w", err)
	}
	if env.MessageType.Data.SenderID != 0 {
		return env.MessageType.Data.SenderID, nil
	}
	if env.MessageType.Data.UserID != nil {
		return *env.MessageType.Data.UserID, nil
	}
	return 0, fmt.Errorf("envelope has no sender")
}

// forwardUnbounded drains in into an unbounded queue so producers
// never block, and feeds out in arrival order.
func forwardUnbounded(in <-chan []byte, out chan<- []byte) {
	defer close(out)
	var queue [][]byte
	for {
		var send chan<- []byte
		var head []byte
		if len(queue) > 0 {
			send = out
			head = queue[0]
		}
		select {
		case v, ok := <-in:
			if !ok {
				for _, rest := range queue {
					out <- rest
				}
				return
			}
			queue = append(queue, v)
		case send <- head:
			queue = queue[1:]
		}
	}
}
