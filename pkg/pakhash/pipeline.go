package pakhash

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/rs/zerolog"
	"github.com/sirrobot01/pakscan/pkg/zipscan"
)

// DefaultSuffix selects Quake III sub-archives.
const DefaultSuffix = ".pk3"

type Option func(*Pipeline)

func WithSuffix(suffix string) Option {
	return func(p *Pipeline) {
		p.suffix = suffix
	}
}

func WithAlgorithm(a Algorithm) Option {
	return func(p *Pipeline) {
		p.algorithm = a
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// Pipeline selects qualifying entries, inflates them and digests the result.
// It holds no per-stream state and may be shared between containers.
type Pipeline struct {
	suffix    string
	algorithm Algorithm
	logger    zerolog.Logger
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		suffix:    DefaultSuffix,
		algorithm: SHA1,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Suffix() string {
	return p.suffix
}

func (p *Pipeline) Algorithm() Algorithm {
	return p.algorithm
}

// Accepts reports whether h is a non-empty local entry whose name carries the
// qualifying suffix. It only looks at metadata, so it can run before the
// payload has arrived.
func (p *Pipeline) Accepts(h *zipscan.Header) bool {
	return h.IsLocal() && !h.IsEmpty() && strings.HasSuffix(h.Name, p.suffix)
}

// Process hashes every accepted header in order. Entries that fail are left
// out of the results and reported in errs; they never stop the batch.
func (p *Pipeline) Process(headers []*zipscan.Header) (results Results, errs []error) {
	for _, h := range headers {
		if !p.Accepts(h) {
			p.logger.Trace().Str("entry", h.Name).Bool("empty", h.IsEmpty()).Msg("Skipping entry")
			continue
		}
		res, err := p.Hash(h)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// Hash inflates the payload of h and digests the decompressed bytes. It does
// not apply the selection filter.
func (p *Pipeline) Hash(h *zipscan.Header) (Result, error) {
	if h.Method != zipscan.MethodDeflate {
		return Result{}, &EntryError{
			Name:   h.Name,
			Method: h.Method,
			Err:    fmt.Errorf("%w: %d", ErrUnsupportedMethod, h.Method),
		}
	}

	fr := flate.NewReader(bytes.NewReader(h.Payload))
	defer fr.Close()

	hasher := p.algorithm.New()
	n, err := io.Copy(hasher, fr)
	if err != nil {
		return Result{}, &EntryError{
			Name:   h.Name,
			Method: h.Method,
			Err:    fmt.Errorf("%w: %v", ErrDecompress, err),
		}
	}
	p.logger.Trace().Str("entry", h.Name).Int64("size", n).Msg("Hashed entry")

	return Result{
		Name:   h.BaseName(),
		Digest: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}
