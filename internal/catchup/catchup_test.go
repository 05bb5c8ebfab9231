package catchup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abelbrown/vinewatch/internal/model"
)

type fakeSource struct {
	calls atomic.Int32
	items []model.Item
	err   error
	gate  chan struct{} // if set, FetchRecent waits on it
	began chan struct{}
}

func (f *fakeSource) FetchRecent(ctx context.Context, limit int) ([]model.Item, error) {
	f.calls.Add(1)
	if f.began != nil {
		f.began <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.items, f.err
}

type sinkLog struct {
	mu      sync.Mutex
	batches [][]model.Item
	ch      chan struct{}
}

func newSinkLog() *sinkLog { return &sinkLog{ch: make(chan struct{}, 16)} }

func (s *sinkLog) sink(items []model.Item) {
	s.mu.Lock()
	s.batches = append(s.batches, items)
	s.mu.Unlock()
	s.ch <- struct{}{}
}

func (s *sinkLog) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func TestTriggerDeliversToSink(t *testing.T) {
	src := &fakeSource{items: []model.Item{{ASIN: "A"}, {ASIN: "B"}}}
	log := newSinkLog()
	r := NewRunner(src, log.sink, WithInterval(0))

	if r.Trigger("manual") {
		t.Error("trigger before start should report false")
	}

	r.Start(context.Background())
	defer r.Stop()
	r.Trigger("reconnect")

	select {
	case <-log.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("sink never called")
	}
	if got := len(log.batches[0]); got != 2 {
		t.Errorf("batch size = %d, want 2", got)
	}
}

func TestPeriodicSchedule(t *testing.T) {
	src := &fakeSource{items: []model.Item{{ASIN: "A"}}}
	log := newSinkLog()
	r := NewRunner(src, log.sink, WithInterval(10*time.Millisecond))
	r.Start(context.Background())
	defer r.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-log.ch:
		case <-time.After(2 * time.Second):
			t.Fatal("schedule did not fire")
		}
	}
}

func TestErrorsAndEmptyResultsAreTolerated(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeSource
	}{
		{"error", &fakeSource{err: errors.New("503")}},
		{"empty", &fakeSource{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := newSinkLog()
			r := NewRunner(tt.src, log.sink, WithInterval(0))
			r.Start(context.Background())
			r.mu.Lock()
			gen := r.gen
			r.mu.Unlock()

			n, err := r.fetch(context.Background(), gen, "test")
			if n != 0 {
				t.Errorf("n = %d", n)
			}
			if tt.name == "empty" && err != nil {
				t.Errorf("empty result should not be an error, got %v", err)
			}
			r.Stop()
			r.Wait()
			if log.len() != 0 {
				t.Error("sink should not be called")
			}
		})
	}
}

func TestResultAfterStopIsDiscarded(t *testing.T) {
	src := &fakeSource{
		items: []model.Item{{ASIN: "A"}},
		gate:  make(chan struct{}),
		began: make(chan struct{}, 1),
	}
	log := newSinkLog()
	r := NewRunner(src, log.sink, WithInterval(0))
	r.Start(context.Background())
	r.Trigger("manual")

	select {
	case <-src.began:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
	r.Stop()
	close(src.gate)
	r.Wait()

	if log.len() != 0 {
		t.Error("result delivered after stop")
	}
	if r.Running() {
		t.Error("runner still running")
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "100" || r.URL.Query().Get("country") != "US" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"asin": "B01", "title": "First", "queue": "encore"},
				{"asin": "  ", "title": "no asin"},
				{"asin": "B02", "title": "Second", "etv_min": 1.5, "etv_max": 2},
			},
		})
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "US", time.Second, 0)
	items, err := src.FetchRecent(context.Background(), 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Queue != model.QueueEncore || !items[1].HasETV() {
		t.Errorf("unexpected decode: %+v", items)
	}
}

func TestHTTPSourceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "US", time.Second, 0)
	if _, err := src.FetchRecent(context.Background(), 10); err == nil {
		t.Error("expected an error for 503")
	}
}

func TestHTTPSourceSharesInFlightRequest(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte(`{"items":[{"asin":"B01"}]}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "US", 5*time.Second, 0)

	var wg sync.WaitGroup
	results := make([]int, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			items, err := src.FetchRecent(context.Background(), 50)
			if err == nil {
				results[i] = len(items)
			}
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("request never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
	for i, n := range results {
		if n != 1 {
			t.Errorf("caller %d got %d items", i, n)
		}
	}
}
