package wire

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sirrobot01/pakscan/pkg/pakhash"
	"golang.org/x/sync/errgroup"
)

// Failure describes a container that could not be processed completely.
type Failure struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

type Summary struct {
	RunID   string          `json:"run_id"`
	Found   int             `json:"found"`
	Failed  []Failure       `json:"failed"`
	Total   int             `json:"total"`
	Elapsed time.Duration   `json:"elapsed"`
	Results pakhash.Results `json:"results"`
}

type RunnerOption func(*Runner)

// WithOutput sets where result lines are written, in list order.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *Runner) {
		r.output = w
	}
}

func WithEvents(s Sink) RunnerOption {
	return func(r *Runner) {
		r.sink = s
	}
}

func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		r.concurrency = n
	}
}

func WithRunnerLogger(l zerolog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// Runner processes a list of containers with bounded concurrency.
type Runner struct {
	fetcher     Fetcher
	bridge      *Bridge
	output      io.Writer
	sink        Sink
	concurrency int
	logger      zerolog.Logger
}

func NewRunner(f Fetcher, b *Bridge, opts ...RunnerOption) *Runner {
	r := &Runner{
		fetcher:     f,
		bridge:      b,
		sink:        Discard,
		concurrency: 1,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}
	return r
}

// orderedWriter releases per-target results in list order as soon as every
// earlier target has completed.
type orderedWriter struct {
	mu      sync.Mutex
	w       io.Writer
	next    int
	pending map[int]pakhash.Results
	err     error
}

func (o *orderedWriter) complete(index int, res pakhash.Results) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[index] = res
	for {
		res, ok := o.pending[o.next]
		if !ok {
			return o.err
		}
		delete(o.pending, o.next)
		o.next++
		o.write(res)
	}
}

// flush writes whatever is left, skipping targets that never completed.
func (o *orderedWriter) flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	indexes := make([]int, 0, len(o.pending))
	for i := range o.pending {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		o.write(o.pending[i])
		delete(o.pending, i)
	}
	return o.err
}

func (o *orderedWriter) write(res pakhash.Results) {
	if o.w == nil || o.err != nil || len(res) == 0 {
		return
	}
	if _, err := res.WriteTo(o.w); err != nil {
		o.err = fmt.Errorf("error writing output: %w", err)
	}
}

// Run processes every target. A failed container never stops the others;
// failures are collected in the summary. The returned error is only set when
// the output cannot be written or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, targets []Target) (*Summary, error) {
	if len(targets) == 0 {
		return nil, ErrEmptyList
	}
	start := time.Now()
	summary := &Summary{
		RunID:  uuid.New().String(),
		Total:  len(targets),
		Failed: []Failure{},
	}
	r.logger.Debug().Str("run", summary.RunID).Int("targets", len(targets)).Int("concurrency", r.concurrency).Msg("Starting run")

	results := make([]pakhash.Results, len(targets))
	failures := make([]*Failure, len(targets))
	out := &orderedWriter{w: r.output, pending: make(map[int]pakhash.Results)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, t := range targets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := r.process(gctx, summary.RunID, t)
			results[i] = res
			if err != nil {
				failures[i] = &Failure{Name: t.Name, URL: t.URL, Reason: err.Error(), Err: err}
			}
			return out.complete(i, res)
		})
	}
	werr := g.Wait()
	if ferr := out.flush(); werr == nil {
		werr = ferr
	}

	for i := range targets {
		summary.Results = append(summary.Results, results[i]...)
		if failures[i] != nil {
			summary.Failed = append(summary.Failed, *failures[i])
		}
	}
	summary.Found = len(summary.Results)
	summary.Elapsed = time.Since(start)

	if werr != nil {
		return summary, werr
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (r *Runner) process(ctx context.Context, runID string, t Target) (pakhash.Results, error) {
	sink := SinkFunc(func(e Event) {
		e.RunID = runID
		if e.URL == "" {
			e.URL = t.URL
		}
		if e.Time.IsZero() {
			e.Time = time.Now()
		}
		r.sink.Emit(e)
	})
	sink.Emit(Event{Kind: EventStart, Name: t.Name})

	body, err := r.fetcher.Fetch(ctx, t.URL)
	if err != nil {
		sink.Emit(Event{Kind: EventFailed, Name: t.Name, Err: err})
		return nil, err
	}
	defer func() {
		if cerr := body.Close(); cerr != nil {
			r.logger.Debug().Err(cerr).Str("container", t.Name).Msg("Error closing body")
		}
	}()

	pr := NewProgressReader(body, body.ContentLength, func(read, total, speed int64) {
		sink.Emit(Event{Kind: EventProgress, Name: t.Name, Bytes: read, Total: total, Speed: speed})
	})
	res, err := r.bridge.WithSink(sink).Run(ctx, t.Name, pr)
	if err != nil {
		sink.Emit(Event{Kind: EventFailed, Name: t.Name, Bytes: pr.BytesRead(), Err: err})
		return res, err
	}
	if len(res) == 0 {
		sink.Emit(Event{Kind: EventNoResults, Name: t.Name})
	}
	sink.Emit(Event{Kind: EventDone, Name: t.Name, Bytes: pr.BytesRead()})
	return res, nil
}
