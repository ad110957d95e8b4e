package wire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirrobot01/pakscan/internal/testutil"
	"github.com/sirrobot01/pakscan/pkg/pakhash"
)

const (
	sha1ABC = "a9993e364706816aba3e25717850c26c9cd0d89d"
)

type fakeContainer struct {
	data  []byte
	delay time.Duration
	err   error
}

func fakeFetcher(containers map[string]fakeContainer) Fetcher {
	return FetcherFunc(func(ctx context.Context, url string) (*Body, error) {
		c, ok := containers[url]
		if !ok {
			return nil, &FetchError{URL: url, StatusCode: http.StatusNotFound, Err: ErrStatus}
		}
		if c.delay > 0 {
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if c.err != nil {
			return nil, c.err
		}
		return &Body{ReadCloser: io.NopCloser(bytes.NewReader(c.data)), ContentLength: int64(len(c.data))}, nil
	})
}

func TestRunner_OutputFollowsListOrder(t *testing.T) {
	containers := map[string]fakeContainer{
		"u/slow": {data: testutil.Container(testutil.Deflated("slow.pk3", []byte("abc"))), delay: 80 * time.Millisecond},
		"u/mid":  {data: testutil.Container(testutil.Deflated("mid.pk3", []byte("abc"))), delay: 20 * time.Millisecond},
		"u/fast": {data: testutil.Container(testutil.Deflated("fast.pk3", []byte("abc")))},
	}
	targets := []Target{
		{Index: 0, Name: "slow", URL: "u/slow"},
		{Index: 1, Name: "mid", URL: "u/mid"},
		{Index: 2, Name: "fast", URL: "u/fast"},
	}

	var out bytes.Buffer
	r := NewRunner(fakeFetcher(containers), NewBridge(pakhash.New()), WithOutput(&out), WithConcurrency(3))
	summary, err := r.Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := "slow.pk3 " + sha1ABC + "\nmid.pk3 " + sha1ABC + "\nfast.pk3 " + sha1ABC + "\n"
	if out.String() != want {
		t.Errorf("Expected output in list order, got:\n%s", out.String())
	}
	if summary.Found != 3 || summary.Total != 3 || len(summary.Failed) != 0 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if summary.RunID == "" {
		t.Error("Expected a run id")
	}
	if got := strings.Join(summary.Results.Names(), ","); got != "slow.pk3,mid.pk3,fast.pk3" {
		t.Errorf("Unexpected summary results: %s", got)
	}
}

func TestRunner_FailuresDoNotStopOthers(t *testing.T) {
	var malformed []byte
	malformed = append(malformed, testutil.Deflated("first.pk3", []byte("abc")).Bytes()...)
	malformed = append(malformed, []byte("GARBAGE!")...)

	containers := map[string]fakeContainer{
		"u/ok":        {data: testutil.Container(testutil.Deflated("ok.pk3", []byte("abc")))},
		"u/malformed": {data: malformed},
		"u/refused":   {err: &FetchError{URL: "u/refused", Err: errors.New("connection refused")}},
		"u/empty":     {data: testutil.Container(testutil.Dir("maps/"))},
	}
	targets := []Target{
		{Index: 0, Name: "malformed", URL: "u/malformed"},
		{Index: 1, Name: "missing", URL: "u/missing"},
		{Index: 2, Name: "refused", URL: "u/refused"},
		{Index: 3, Name: "empty", URL: "u/empty"},
		{Index: 4, Name: "ok", URL: "u/ok"},
	}

	rec := &Recorder{}
	var out bytes.Buffer
	r := NewRunner(fakeFetcher(containers), NewBridge(pakhash.New()), WithOutput(&out), WithEvents(rec), WithConcurrency(2))
	summary, err := r.Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Total != 5 || summary.Found != 2 {
		t.Errorf("Expected 2 hashes out of 5 containers, got %+v", summary)
	}
	var failed []string
	for _, f := range summary.Failed {
		failed = append(failed, f.Name)
		if f.Reason == "" || f.URL == "" {
			t.Errorf("Failure without details: %+v", f)
		}
	}
	if got := strings.Join(failed, ","); got != "malformed,missing,refused" {
		t.Errorf("Unexpected failures: %s", got)
	}
	if out.String() != "first.pk3 "+sha1ABC+"\nok.pk3 "+sha1ABC+"\n" {
		t.Errorf("Unexpected output:\n%s", out.String())
	}

	checks := map[string][]EventKind{
		"malformed": {EventStart, EventResult, EventFailed},
		"missing":   {EventStart, EventFailed},
		"empty":     {EventStart, EventNoResults, EventDone},
		"ok":        {EventStart, EventResult, EventDone},
	}
	for name, want := range checks {
		got := rec.Kinds(name)
		if len(got) != len(want) {
			t.Errorf("%s: expected events %v, got %v", name, want, got)
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s: expected events %v, got %v", name, want, got)
				break
			}
		}
	}
	for _, e := range rec.Events() {
		if e.RunID != summary.RunID {
			t.Errorf("Event %s for %s has run id %q", e.Kind, e.Name, e.RunID)
		}
	}
}

func TestRunner_EmptyList(t *testing.T) {
	_, err := NewRunner(fakeFetcher(nil), NewBridge(pakhash.New())).Run(context.Background(), nil)
	if !errors.Is(err, ErrEmptyList) {
		t.Errorf("Expected ErrEmptyList, got %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestRunner_OutputErrorStopsRun(t *testing.T) {
	containers := map[string]fakeContainer{
		"u/a": {data: testutil.Container(testutil.Deflated("a.pk3", []byte("abc")))},
	}
	_, err := NewRunner(fakeFetcher(containers), NewBridge(pakhash.New()), WithOutput(failingWriter{})).
		Run(context.Background(), []Target{{Name: "a", URL: "u/a"}})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Expected output error, got %v", err)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	containers := map[string]fakeContainer{
		"u/a": {data: testutil.Container(testutil.Deflated("a.pk3", []byte("abc"))), delay: time.Second},
		"u/b": {data: testutil.Container(testutil.Deflated("b.pk3", []byte("abc"))), delay: time.Second},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	summary, err := NewRunner(fakeFetcher(containers), NewBridge(pakhash.New())).
		Run(ctx, []Target{{Index: 0, Name: "a", URL: "u/a"}, {Index: 1, Name: "b", URL: "u/b"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Run did not stop promptly")
	}
	if summary == nil || summary.Found != 0 {
		t.Errorf("Unexpected summary %+v", summary)
	}
}

func TestRunner_OverHTTP(t *testing.T) {
	data := testutil.Container(sampleMap(), testutil.Dir("maps/"))
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	targets, err := ParseList(strings.NewReader("pack " + srv.URL + "/pack.zip\n"))
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	summary, err := NewRunner(NewHTTPFetcher(defaultAccept), NewBridge(pakhash.New()), WithOutput(&out)).
		Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.String() != "map1.pk3 "+sha1HelloWorld+"\n" || summary.Found != 1 {
		t.Errorf("Unexpected output %q", out.String())
	}
	if requests.Load() != 1 {
		t.Errorf("Expected a single request, got %d", requests.Load())
	}
}
