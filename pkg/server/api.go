package server

import (
	"cmp"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/sirrobot01/pakscan/internal/request"
	"github.com/sirrobot01/pakscan/internal/utils"
	"github.com/sirrobot01/pakscan/pkg/pakhash"
	"github.com/sirrobot01/pakscan/pkg/wire"
)

const maxListSize = 1 << 20

type errorResponse struct {
	Error   string          `json:"error"`
	Status  int             `json:"status,omitempty"`  // upstream status, when there was one
	Results pakhash.Results `json:"results,omitempty"` // gathered before the failure
}

// API exposes the scanner over HTTP.
type API struct {
	fetcher     wire.Fetcher
	bridge      *wire.Bridge
	output      string
	concurrency int
	sink        wire.Sink
	logger      zerolog.Logger

	runMu sync.Mutex
	mu    sync.RWMutex
	last  *wire.Summary
}

type APIOption func(*API)

// WithOutputFile appends the results of every run to path.
func WithOutputFile(path string) APIOption {
	return func(a *API) {
		a.output = path
	}
}

func WithRunConcurrency(n int) APIOption {
	return func(a *API) {
		a.concurrency = n
	}
}

func WithEventSink(s wire.Sink) APIOption {
	return func(a *API) {
		a.sink = s
	}
}

func WithLogger(l zerolog.Logger) APIOption {
	return func(a *API) {
		a.logger = l
	}
}

func NewAPI(fetcher wire.Fetcher, bridge *wire.Bridge, opts ...APIOption) *API {
	a := &API{
		fetcher:     fetcher,
		bridge:      bridge,
		concurrency: 1,
		sink:        wire.Discard,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/hash", a.handleHash)
	r.Post("/runs", a.handleRun)
	r.Get("/runs/last", a.handleLastRun)
	return r
}

func fetchStatus(err error) int {
	var fe *wire.FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

func (a *API) handleHash(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	u, err := url.Parse(rawURL)
	if rawURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		request.JSONResponse(w, errorResponse{Error: "a http(s) url is required"}, http.StatusBadRequest)
		return
	}
	name := cmp.Or(r.URL.Query().Get("name"), utils.BaseURLName(rawURL))

	body, err := a.fetcher.Fetch(r.Context(), rawURL)
	if err != nil {
		a.logger.Warn().Err(err).Str("url", rawURL).Msg("Fetch failed")
		request.JSONResponse(w, errorResponse{Error: err.Error(), Status: fetchStatus(err)}, http.StatusBadGateway)
		return
	}
	defer body.Close()

	results, err := a.bridge.WithSink(a.sink).Run(r.Context(), name, body)
	if err != nil {
		a.logger.Warn().Err(err).Str("container", name).Msg("Container failed")
		request.JSONResponse(w, errorResponse{Error: err.Error(), Results: results}, http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := results.WriteTo(w); err != nil {
		a.logger.Debug().Err(err).Msg("Error writing response")
	}
}

func (a *API) handleRun(w http.ResponseWriter, r *http.Request) {
	targets, err := wire.ParseList(io.LimitReader(r.Body, maxListSize))
	if err != nil {
		request.JSONResponse(w, errorResponse{Error: err.Error()}, http.StatusBadRequest)
		return
	}
	if len(targets) == 0 {
		request.JSONResponse(w, errorResponse{Error: wire.ErrEmptyList.Error()}, http.StatusBadRequest)
		return
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()

	opts := []wire.RunnerOption{
		wire.WithConcurrency(a.concurrency),
		wire.WithEvents(a.sink),
		wire.WithRunnerLogger(a.logger),
	}
	if a.output != "" {
		f, err := utils.OpenAppend(a.output)
		if err != nil {
			a.logger.Error().Err(err).Msg("Error opening output file")
			request.JSONResponse(w, errorResponse{Error: "output file unavailable"}, http.StatusInternalServerError)
			return
		}
		defer f.Close()
		opts = append(opts, wire.WithOutput(f))
	}

	summary, err := wire.NewRunner(a.fetcher, a.bridge, opts...).Run(r.Context(), targets)
	if summary != nil {
		a.mu.Lock()
		a.last = summary
		a.mu.Unlock()
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("Run failed")
		request.JSONResponse(w, errorResponse{Error: err.Error()}, http.StatusInternalServerError)
		return
	}
	a.logger.Info().Str("run", summary.RunID).Msgf("Found %d hashes, %d/%d containers failed", summary.Found, len(summary.Failed), summary.Total)
	request.JSONResponse(w, summary, http.StatusOK)
}

func (a *API) handleLastRun(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	last := a.last
	a.mu.RUnlock()
	if last == nil {
		request.JSONResponse(w, errorResponse{Error: "no runs yet"}, http.StatusNotFound)
		return
	}
	request.JSONResponse(w, last, http.StatusOK)
}
