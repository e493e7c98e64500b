package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/yndnr/diagsave-go/internal/core/domain"
)

func newTestRegistry(t *testing.T, cfg BufferConfig) (*Registry, *fakeClock, *countingStore) {
	t.Helper()
	clock := newFakeClock()
	store := newCountingStore()
	if cfg.Debounce == 0 {
		cfg.Debounce = testDebounce
	}
	r := NewRegistry(cfg, nil, store, WithClock(clock))
	t.Cleanup(func() { r.Close() })
	return r, clock, store
}

func TestRegistry_GetCreatesOncePerNamespace(t *testing.T) {
	r, _, _ := newTestRegistry(t, BufferConfig{})

	a1, err := r.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := r.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Error("Get should return the same buffer for a namespace")
	}
	if _, err := r.Get("b"); err != nil {
		t.Fatal(err)
	}

	if got, want := r.Namespaces(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Namespaces() = %v, want %v", got, want)
	}
	if _, ok := r.Lookup("c"); ok {
		t.Error("Lookup should not create buffers")
	}
}

func TestRegistry_InvalidNamespace(t *testing.T) {
	r, _, _ := newTestRegistry(t, BufferConfig{})

	for _, ns := range []string{"", "a/b", "with space"} {
		if _, err := r.Get(ns); !errors.Is(err, domain.ErrNamespaceInvalid) {
			t.Errorf("Get(%q) = %v, want ErrNamespaceInvalid", ns, err)
		}
	}
}

func TestRegistry_SetEnabled(t *testing.T) {
	r, clock, store := newTestRegistry(t, BufferConfig{})

	a, _ := r.Get("a")
	r.SetEnabled(false)
	if a.Enabled() {
		t.Error("existing buffer still enabled")
	}

	b, _ := r.Get("b")
	if b.Enabled() {
		t.Error("buffer created while disabled should start disabled")
	}

	s, _ := domain.NewSnapshotAt("x", nil, clock.Now())
	b.RequestSave(s)
	clock.Advance(testDebounce)
	if n := len(store.Puts()); n != 0 {
		t.Errorf("writes while disabled = %d", n)
	}

	r.SetEnabled(true)
	if !a.Enabled() || !b.Enabled() || !r.Enabled() {
		t.Error("SetEnabled(true) did not reach every buffer")
	}
}

func TestRegistry_FlushAllAndStats(t *testing.T) {
	r, clock, store := newTestRegistry(t, BufferConfig{})
	ctx := context.Background()

	for _, ns := range []string{"a", "b", "c"} {
		b, err := r.Get(ns)
		if err != nil {
			t.Fatal(err)
		}
		s, _ := domain.NewSnapshotAt(ns, nil, clock.Now())
		b.RequestSave(s)
	}
	c, _ := r.Lookup("c")
	c.Disable()

	st := r.BufferStats()
	if st.Active != 3 || st.Pending != 3 || st.Disabled != 1 {
		t.Errorf("BufferStats() = %+v", st)
	}

	if err := r.FlushAll(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(store.Puts()); n != 2 {
		t.Errorf("FlushAll wrote %d snapshots, want 2 (c is disabled)", n)
	}
}

func TestRegistry_Close(t *testing.T) {
	r, _, _ := newTestRegistry(t, BufferConfig{})

	a, _ := r.Get("a")
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	if _, err := r.Get("b"); !errors.Is(err, domain.ErrBufferClosed) {
		t.Errorf("Get after Close = %v, want ErrBufferClosed", err)
	}
	s, _ := domain.NewSnapshot("x", nil)
	if _, err := a.ForceSave(context.Background(), s); !errors.Is(err, domain.ErrBufferClosed) {
		t.Errorf("ForceSave on closed registry buffer = %v", err)
	}
}
