package zipscan

import (
	"context"
	"errors"
	"io"
)

// DefaultChunkSize is the read size used by Scan when none is given.
const DefaultChunkSize = 64 * 1024

type State int

const (
	StateScanning State = iota
	StateSkipping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateSkipping:
		return "skipping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type Option func(*Scanner)

// WithSkipFunc installs a filter consulted as soon as a local header's name
// and extra field are available. Entries it rejects are never returned and
// their payload is discarded as it streams past instead of being buffered.
// fn may be called more than once for the same entry and must be pure.
func WithSkipFunc(fn func(*Header) bool) Option {
	return func(s *Scanner) {
		s.skip = fn
	}
}

// Scanner turns an arbitrary sequence of byte chunks into ZIP local file
// headers. It is not safe for concurrent use; chunks must be fed in stream
// order.
type Scanner struct {
	store       []byte // scanner owned storage backing carry
	carry       []byte // bytes of an incomplete record, aliases store
	pendingSkip int64
	offset      int64 // stream offset of the first byte not yet consumed
	state       State
	terminator  Signature
	err         error
	skip        func(*Header) bool
	skipped     int
}

func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Feed scans one chunk and returns the local file headers completed by it, in
// stream order. The headers reference chunk and scanner memory and are only
// valid until the next call to Feed.
//
// A central-directory or end-of-central-directory record terminates the scan
// cleanly: Done reports true and the error is nil. An unknown signature
// terminates it with a *SignatureError; headers decoded before the bad record
// are still returned. Feeding a terminated scanner returns ErrTerminated.
func (s *Scanner) Feed(chunk []byte) ([]*Header, error) {
	if s.state == StateTerminated {
		return nil, ErrTerminated
	}

	buf := chunk
	if s.pendingSkip > 0 {
		if int64(len(buf)) <= s.pendingSkip {
			s.pendingSkip -= int64(len(buf))
			s.offset += int64(len(buf))
			if s.pendingSkip == 0 {
				s.state = StateScanning
			}
			return nil, nil
		}
		buf = buf[s.pendingSkip:]
		s.offset += s.pendingSkip
		s.pendingSkip = 0
		s.state = StateScanning
	}

	owned := len(s.carry) > 0
	if owned {
		// carry is a tail of store; move it to the front and append the chunk
		n := copy(s.store, s.carry)
		s.store = append(s.store[:n], buf...)
		s.carry = nil
		buf = s.store
	}

	var headers []*Header
	for len(buf) > 0 {
		if s.skip != nil {
			h, ok, err := Peek(buf)
			if err != nil {
				return headers, s.fail(err)
			}
			if !ok {
				break
			}
			if h.IsLocal() && s.skip(h) {
				s.skipped++
				if h.Span > int64(len(buf)) {
					s.skipAhead(h.Span - int64(len(buf)))
					s.offset += int64(len(buf))
					return headers, nil
				}
				s.offset += h.Span
				buf = buf[h.Span:]
				continue
			}
		}

		h, ok, err := Decode(buf)
		if err != nil {
			return headers, s.fail(err)
		}
		if !ok {
			break
		}
		if !h.IsLocal() {
			s.terminate(h.Signature)
			return headers, nil
		}

		headers = append(headers, h)
		if h.Span > int64(len(buf)) {
			// Decode never hands out a partial record; this only guards
			// against a decoder that does.
			s.skipAhead(h.Span - int64(len(buf)))
			s.offset += int64(len(buf))
			return headers, nil
		}
		s.offset += h.Span
		buf = buf[h.Span:]
	}

	s.keep(buf, owned)
	return headers, nil
}

// keep retains the unconsumed tail of the current buffer for the next Feed.
func (s *Scanner) keep(rest []byte, owned bool) {
	if len(rest) == 0 {
		s.carry = nil
		return
	}
	if owned {
		s.carry = rest
		return
	}
	// rest belongs to the caller's chunk which may be reused
	s.store = append(s.store[:0], rest...)
	s.carry = s.store
}

func (s *Scanner) skipAhead(n int64) {
	s.pendingSkip = n
	s.carry = nil
	s.state = StateSkipping
}

func (s *Scanner) fail(err error) error {
	var sigErr *SignatureError
	if errors.As(err, &sigErr) {
		sigErr.Offset = s.offset
	}
	s.err = err
	s.state = StateTerminated
	s.release()
	return err
}

func (s *Scanner) terminate(sig Signature) {
	s.terminator = sig
	s.state = StateTerminated
	s.release()
}

func (s *Scanner) release() {
	s.carry = nil
	s.store = nil
	s.pendingSkip = 0
}

// Close ends the stream. Any carried bytes belong to a truncated trailing
// record and are dropped; their count is returned.
func (s *Scanner) Close() int {
	n := len(s.carry)
	s.state = StateTerminated
	s.release()
	return n
}

// Done reports whether the scanner has terminated.
func (s *Scanner) Done() bool {
	return s.state == StateTerminated
}

func (s *Scanner) State() State {
	return s.state
}

// Err returns the error that terminated the scanner, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Terminator returns the signature of the record that ended the scan, or zero.
func (s *Scanner) Terminator() Signature {
	return s.terminator
}

// Offset returns the stream offset of the first byte not yet consumed.
func (s *Scanner) Offset() int64 {
	return s.offset
}

// Skipped returns the number of entries rejected by the skip func.
func (s *Scanner) Skipped() int {
	return s.skipped
}

// Buffered returns the number of carried bytes awaiting more input.
func (s *Scanner) Buffered() int {
	return len(s.carry)
}

// Scan reads r in chunks of up to size bytes and feeds them to the scanner.
// fn receives every non-empty batch of headers before the next read, so the
// headers stay valid for its duration. Scan returns nil when the container
// terminates or r reaches io.EOF; it does not Close the scanner.
func (s *Scanner) Scan(ctx context.Context, r io.Reader, size int, fn func([]*Header) error) error {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunk := make([]byte, size)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := r.Read(chunk)
		if n > 0 {
			headers, err := s.Feed(chunk[:n])
			if len(headers) > 0 {
				if ferr := fn(headers); ferr != nil {
					return ferr
				}
			}
			if err != nil {
				return err
			}
			if s.Done() {
				return nil
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return &ReadError{Offset: s.offset + int64(len(s.carry)), Err: rerr}
		}
	}
}
