package stream

import (
	"errors"
	"io"
	"sync"
)

// DefaultSpoolLimit is how far ahead of playback the engine may read.
const DefaultSpoolLimit = 32 << 20

var errSpoolClosed = errors.New("spool closed by reader")

// Spool is an in-memory pass-through between a decode process and the
// playback engine. Writes block once limit bytes are unread. Reads block until
// the gate is opened or the writer finishes.
type Spool struct {
	mu    sync.Mutex
	cond  *sync.Cond
	buf   []byte
	limit int

	open   bool
	ended  bool
	err    error
	closed bool
}

func NewSpool(limit int) *Spool {
	if limit <= 0 {
		limit = DefaultSpoolLimit
	}
	s := &Spool{limit: limit}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// OpenGate lets readers start consuming.
func (s *Spool) OpenGate() {
	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *Spool) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for len(p) > 0 {
		for len(s.buf) >= s.limit && !s.closed && !s.ended {
			s.cond.Wait()
		}
		if s.closed {
			return n, errSpoolClosed
		}
		if s.ended {
			return n, io.ErrClosedPipe
		}
		room := min(s.limit-len(s.buf), len(p))
		s.buf = append(s.buf, p[:room]...)
		p = p[room:]
		n += room
		s.cond.Broadcast()
	}
	return n, nil
}

// CloseWithError ends the write side. A nil err lets readers drain what is
// buffered and then see io.EOF. A non-nil err discards the buffer and is
// returned by the next Read.
func (s *Spool) CloseWithError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	if err != nil {
		s.err = err
		s.buf = nil
	}
	s.cond.Broadcast()
}

func (s *Spool) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.closed {
			return 0, io.ErrClosedPipe
		}
		if s.err != nil {
			return 0, s.err
		}
		if (s.open || s.ended) && len(s.buf) > 0 {
			n := copy(p, s.buf)
			s.buf = s.buf[n:]
			if len(s.buf) == 0 {
				s.buf = nil
			}
			s.cond.Broadcast()
			return n, nil
		}
		if s.ended {
			return 0, io.EOF
		}
		s.cond.Wait()
	}
}

// Close is called by the consumer. Pending and future writes fail.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buf = nil
	s.cond.Broadcast()
	return nil
}

// Buffered reports unread bytes.
func (s *Spool) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}
