package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sirrobot01/pakscan/pkg/pakhash"
	"github.com/sirrobot01/pakscan/pkg/zipscan"
)

var ErrEntryTooLarge = errors.New("entry exceeds size limit")

type BridgeOption func(*Bridge)

func WithChunkSize(n int) BridgeOption {
	return func(b *Bridge) {
		b.chunkSize = n
	}
}

// WithMaxEntrySize skips qualifying entries whose compressed size is above n
// without buffering them. Zero disables the limit.
func WithMaxEntrySize(n int64) BridgeOption {
	return func(b *Bridge) {
		b.maxEntrySize = n
	}
}

func WithSink(s Sink) BridgeOption {
	return func(b *Bridge) {
		b.sink = s
	}
}

func WithBridgeLogger(l zerolog.Logger) BridgeOption {
	return func(b *Bridge) {
		b.logger = l
	}
}

// Bridge feeds a container body through a scanner into the hash pipeline.
type Bridge struct {
	pipeline     *pakhash.Pipeline
	chunkSize    int
	maxEntrySize int64
	sink         Sink
	logger       zerolog.Logger
}

func NewBridge(p *pakhash.Pipeline, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		pipeline:  p,
		chunkSize: zipscan.DefaultChunkSize,
		sink:      Discard,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithSink returns a copy of b that emits to s.
func (b *Bridge) WithSink(s Sink) *Bridge {
	c := *b
	c.sink = s
	return &c
}

func (b *Bridge) emit(e Event) {
	e.Time = time.Now()
	b.sink.Emit(e)
}

func (b *Bridge) skip(name string) func(*zipscan.Header) bool {
	return func(h *zipscan.Header) bool {
		if !b.pipeline.Accepts(h) {
			return true
		}
		if b.maxEntrySize > 0 && int64(h.CompressedSize) > b.maxEntrySize {
			b.logger.Debug().Str("container", name).Str("entry", h.Name).Uint32("size", h.CompressedSize).Msg("Skipping oversized entry")
			b.emit(Event{
				Kind: EventEntryError,
				Name: name,
				Err: &pakhash.EntryError{
					Name:   h.Name,
					Method: h.Method,
					Err:    fmt.Errorf("%w: %d bytes", ErrEntryTooLarge, h.CompressedSize),
				},
			})
			return true
		}
		return false
	}
}

// Run scans body to completion and returns the results in stream order.
// Every result and entry error is also emitted as it happens. A malformed
// record or an upstream read failure fails the container, but the results
// gathered before it are still returned alongside the error.
func (b *Bridge) Run(ctx context.Context, name string, body io.Reader) (pakhash.Results, error) {
	s := zipscan.NewScanner(zipscan.WithSkipFunc(b.skip(name)))
	var results pakhash.Results

	err := s.Scan(ctx, body, b.chunkSize, func(headers []*zipscan.Header) error {
		res, errs := b.pipeline.Process(headers)
		for i := range res {
			b.emit(Event{Kind: EventResult, Name: name, Result: &res[i]})
		}
		for _, e := range errs {
			b.emit(Event{Kind: EventEntryError, Name: name, Err: e})
		}
		results = append(results, res...)
		return nil
	})

	if dropped := s.Close(); dropped > 0 {
		b.logger.Debug().Str("container", name).Int("bytes", dropped).Msg("Discarded truncated trailing record")
	}
	b.logger.Trace().Str("container", name).Int64("offset", s.Offset()).Int("skipped", s.Skipped()).Msg("Scan finished")

	var readErr *zipscan.ReadError
	switch {
	case err == nil:
		return results, nil
	case errors.As(err, &readErr):
		return results, &UpstreamError{Name: name, Offset: readErr.Offset, Err: readErr.Err}
	default:
		return results, fmt.Errorf("%s: %w", name, err)
	}
}
