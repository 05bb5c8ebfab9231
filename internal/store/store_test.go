package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/vinewatch/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "vinewatch.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen(t *testing.T) {
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	var name string
	err = st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='settings'").Scan(&name)
	if err != nil {
		t.Fatalf("settings table not created: %v", err)
	}
	if rev, err := st.Rev(); err != nil || rev != 0 {
		t.Errorf("Rev() = %d, %v; want 0", rev, err)
	}
}

func TestGetMissing(t *testing.T) {
	st := openTemp(t)
	if _, err := st.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetBumpsRevisionOnlyOnChange(t *testing.T) {
	st := openTemp(t)

	if err := st.Set("a", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := st.Set("a", "1"); err != nil {
		t.Fatalf("Set same: %v", err)
	}
	if rev, _ := st.Rev(); rev != 1 {
		t.Errorf("rev after identical write = %d, want 1", rev)
	}

	if err := st.Set("a", "2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := st.Get("a")
	if err != nil || v != "2" {
		t.Errorf("Get = %q, %v", v, err)
	}
	if rev, _ := st.Rev(); rev != 2 {
		t.Errorf("rev = %d, want 2", rev)
	}

	if err := st.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete("a"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if rev, _ := st.Rev(); rev != 3 {
		t.Errorf("rev after delete = %d, want 3", rev)
	}
}

func TestAllOrderedByKey(t *testing.T) {
	st := openTemp(t)
	st.Set("b", "2")
	st.Set("a", "1")

	all, err := st.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 || all[0].Key != "a" || all[1].Key != "b" {
		t.Fatalf("All = %+v", all)
	}
	if all[0].Updated.IsZero() {
		t.Error("updated_at not scanned")
	}
}

func TestRulesRoundTrip(t *testing.T) {
	st := openTemp(t)

	if rules, err := st.Rules(model.RuleHide); err != nil || rules != nil {
		t.Fatalf("missing rules = %v, %v", rules, err)
	}

	want := []model.Rule{
		{Contains: "cable", Without: "hdmi"},
		{Contains: "lamp", ETVMax: model.BoundOf(25)},
	}
	if err := st.SetRules(model.RuleHide, want); err != nil {
		t.Fatalf("SetRules: %v", err)
	}
	got, err := st.Rules(model.RuleHide)
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Rules = %+v, want %+v", got, want)
	}

	// Lists written by hand with string bounds decode too.
	st.Set(RulesKey(model.RuleBlur), `[{"contains":"x","without":"","etv_min":"","etv_max":"10"}]`)
	blur, err := st.Rules(model.RuleBlur)
	if err != nil || len(blur) != 1 || blur[0].ETVMax != model.BoundOf(10) || blur[0].ETVMin.Set {
		t.Errorf("blur rules = %+v, %v", blur, err)
	}
}

func TestTypedHelpers(t *testing.T) {
	st := openTemp(t)

	if !st.Bool(KeyHighlightPush, true) {
		t.Error("missing bool should return default")
	}
	st.SetBool(KeyHighlightPush, false)
	if st.Bool(KeyHighlightPush, true) {
		t.Error("Bool = true after SetBool(false)")
	}

	if st.Int(KeyCapacity, 2000) != 2000 {
		t.Error("missing int should return default")
	}
	st.Set(KeyCapacity, "abc")
	if st.Int(KeyCapacity, 7) != 7 {
		t.Error("unparsable int should return default")
	}
	st.Set(KeyCapacity, "500")
	if st.Int(KeyCapacity, 7) != 500 {
		t.Error("Int did not parse")
	}
}

func TestWatchSeesWritesFromAnotherHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open a: %v", err)
	}
	defer a.Close()
	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open b: %v", err)
	}
	defer b.Close()

	var mu sync.Mutex
	var seen []int64
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Watch(ctx, 10*time.Millisecond, func(rev int64) {
			mu.Lock()
			seen = append(seen, rev)
			mu.Unlock()
		})
	}()

	lastSeen := func() (int, int64) {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 {
			return 0, -1
		}
		return len(seen), seen[len(seen)-1]
	}
	waitRev := func(want int64) {
		deadline := time.Now().Add(2 * time.Second)
		for {
			if _, rev := lastSeen(); rev == want {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("watch never saw revision %d", want)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	waitRev(0)
	if err := b.Set("rules.hide", "[]"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	waitRev(1)

	cancel()
	<-done
	if n, _ := lastSeen(); n != 2 {
		t.Errorf("callbacks = %d, want 2", n)
	}
}
