package stream

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultPrefetchBytes  = 2 << 20
	DefaultPrefetchWindow = 1200 * time.Millisecond

	chunkSize = 32 << 10
)

// Switch-over triggers.
const (
	SwitchBytes = "bytes"
	SwitchTimer = "timer"
	SwitchEnd   = "end"
)

// Prefetcher copies a process output into a Spool. It accumulates with the
// gate closed until either threshold bytes have arrived or window elapses,
// then opens the gate and pipes the rest straight through.
type Prefetcher struct {
	src io.ReadCloser
	dst *Spool
	log *slog.Logger

	threshold int64
	window    time.Duration

	once     sync.Once
	by       atomic.Value
	switched chan struct{}
	done     chan struct{}
	copied   atomic.Int64
}

func NewPrefetcher(src io.ReadCloser, dst *Spool, threshold int64, window time.Duration, log *slog.Logger) *Prefetcher {
	if threshold <= 0 {
		threshold = DefaultPrefetchBytes
	}
	if window <= 0 {
		window = DefaultPrefetchWindow
	}
	if log == nil {
		log = slog.Default()
	}
	return &Prefetcher{
		src:       src,
		dst:       dst,
		log:       log,
		threshold: threshold,
		window:    window,
		switched:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the copy on its own goroutine.
func (p *Prefetcher) Start() {
	timer := time.AfterFunc(p.window, func() { p.switchOver(SwitchTimer) })
	go func() {
		defer close(p.done)
		defer timer.Stop()
		err := p.copy()
		p.switchOver(SwitchEnd)
		p.dst.CloseWithError(err)
		_ = p.src.Close()
	}()
}

func (p *Prefetcher) copy() error {
	buf := make([]byte, chunkSize)
	for !p.isSwitched() {
		n, err := p.src.Read(buf)
		if n > 0 {
			if _, werr := p.dst.Write(buf[:n]); werr != nil {
				return werr
			}
			if p.copied.Add(int64(n)) >= p.threshold {
				p.switchOver(SwitchBytes)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
	n, err := io.Copy(p.dst, p.src)
	p.copied.Add(n)
	return err
}

func (p *Prefetcher) isSwitched() bool {
	select {
	case <-p.switched:
		return true
	default:
		return false
	}
}

func (p *Prefetcher) switchOver(by string) {
	p.once.Do(func() {
		p.by.Store(by)
		p.dst.OpenGate()
		close(p.switched)
		p.log.Debug("prefetch switch-over", "by", by, "bytes", p.copied.Load())
	})
}

// SwitchedBy reports which trigger fired, or "" before switch-over.
func (p *Prefetcher) SwitchedBy() string {
	v, _ := p.by.Load().(string)
	return v
}

// Switched is closed at switch-over.
func (p *Prefetcher) Switched() <-chan struct{} { return p.switched }

// Done is closed once the source is exhausted and the spool ended.
func (p *Prefetcher) Done() <-chan struct{} { return p.done }

func (p *Prefetcher) Copied() int64 { return p.copied.Load() }
