package broker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"ratatoskr/pkg/logx"
)

const (
	pipeOpenRetryDelay = 500 * time.Millisecond
	pipeSubscribeBuf   = 32
	pipeMaxLine        = 1 << 20
)

// Pipe is the zero-infrastructure backend for local deployments.
// Publish writes newline-delimited payloads to an output stream
// (stdout by default); Subscribe tails a named pipe.
type Pipe struct {
	path string
	log  logx.Logger

	mu  sync.Mutex
	out io.Writer
}

// NewPipe creates a pipe broker reading from the named pipe at path.
func NewPipe(path string, log logx.Logger) *Pipe {
	return &Pipe{
		path: path,
		log:  log.With(logx.String("broker", "pipe")),
		out:  os.Stdout,
	}
}

func (p *Pipe) Publish(ctx context.Context, key string, payload []byte) error {
	_ = key // single tenant, no routing

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.out.Write(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	if _, err := io.WriteString(p.out, "\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	return nil
}

// Subscribe tails the named pipe. A writer closing its end produces
// EOF; the loop reopens immediately so the stream survives writer
// restarts. Open failures retry on a fixed delay.
func (p *Pipe) Subscribe(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte, pipeSubscribeBuf)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			// Opening a FIFO read side blocks until a writer appears.
			f, err := os.Open(p.path)
			if err != nil {
				p.log.Error("open failed, retrying", logx.String("path", p.path), logx.Err(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(pipeOpenRetryDelay):
				}
				continue
			}
			if !forwardLines(ctx, f, out) {
				f.Close()
				return
			}
			f.Close()
		}
	}()
	return out, nil
}

// forwardLines copies complete lines from r to out, skipping empties.
// It returns false when ctx ended, true on EOF (caller reopens).
func forwardLines(ctx context.Context, r io.Reader, out chan<- []byte) bool {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), pipeMaxLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case out <- []byte(line):
		case <-ctx.Done():
			return false
		}
	}
	return ctx.Err() == nil
}
