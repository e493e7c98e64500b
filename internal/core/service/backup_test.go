package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/diagsave-go/internal/core/domain"
	"github.com/yndnr/diagsave-go/internal/storage"
	"github.com/yndnr/diagsave-go/internal/storage/memory"
)

const testDebounce = 5 * time.Second

// countingStore wraps a memory store, recording successful puts and
// optionally failing them.
type countingStore struct {
	*memory.Store

	mu      sync.Mutex
	puts    []string
	failPut error
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memory.New()}
}

func (s *countingStore) Put(ctx context.Context, key, value []byte) error {
	s.mu.Lock()
	fail := s.failPut
	s.mu.Unlock()
	if fail != nil {
		return fail
	}

	if err := s.Store.Put(ctx, key, value); err != nil {
		return err
	}
	s.mu.Lock()
	s.puts = append(s.puts, string(key))
	s.mu.Unlock()
	return nil
}

func (s *countingStore) Puts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.puts...)
}

func (s *countingStore) FailPuts(err error) {
	s.mu.Lock()
	s.failPut = err
	s.mu.Unlock()
}

type bufferFixture struct {
	buf   *Buffer
	clock *fakeClock
	store *countingStore
}

func newTestBuffer(t *testing.T, mutate func(*BufferConfig), opts ...Option) *bufferFixture {
	t.Helper()
	clock := newFakeClock()
	store := newCountingStore()

	cfg := BufferConfig{
		Namespace: "diagram-1",
		Debounce:  testDebounce,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	opts = append([]Option{WithClock(clock)}, opts...)
	b, err := NewBuffer(cfg, slog.Default(), store, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)
	return &bufferFixture{buf: b, clock: clock, store: store}
}

func (f *bufferFixture) snap(t *testing.T, content string) domain.Snapshot {
	t.Helper()
	s, err := domain.NewSnapshotAt(content, []byte(`{"panel":"properties"}`), f.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func mustLatest(t *testing.T, b *Buffer) domain.Snapshot {
	t.Helper()
	s, ok := b.Latest(context.Background())
	if !ok {
		t.Fatal("Latest() reported no snapshot")
	}
	return s
}

func TestBuffer_Coalescing(t *testing.T) {
	f := newTestBuffer(t, nil)

	for i := 0; i < 10; i++ {
		f.buf.RequestSave(f.snap(t, fmt.Sprintf("edit-%d", i)))
		f.clock.Advance(testDebounce / 5)
	}
	if n := len(f.store.Puts()); n != 0 {
		t.Fatalf("writes during burst = %d, want 0", n)
	}

	f.clock.Advance(testDebounce)

	if n := len(f.store.Puts()); n != 1 {
		t.Fatalf("writes after burst = %d, want 1", n)
	}
	if got := mustLatest(t, f.buf).Content(); got != "edit-9" {
		t.Errorf("persisted content = %q, want edit-9", got)
	}
	if f.clock.Scheduled() != 0 {
		t.Errorf("superseded timers left scheduled: %d", f.clock.Scheduled())
	}
}

func TestBuffer_DebounceTiming(t *testing.T) {
	f := newTestBuffer(t, nil)

	f.buf.RequestSave(f.snap(t, "only"))
	if !f.buf.Pending() {
		t.Error("Pending() = false right after RequestSave")
	}

	f.clock.Advance(testDebounce - time.Millisecond)
	if n := len(f.store.Puts()); n != 0 {
		t.Fatalf("write happened %v early", time.Millisecond)
	}

	f.clock.Advance(time.Millisecond)
	if n := len(f.store.Puts()); n != 1 {
		t.Fatalf("writes at debounce = %d, want 1", n)
	}
	if f.buf.Pending() {
		t.Error("Pending() = true after the write")
	}

	f.clock.Advance(10 * testDebounce)
	if n := len(f.store.Puts()); n != 1 {
		t.Errorf("writes after silence = %d, want exactly 1", n)
	}
}

func TestBuffer_RetentionBound(t *testing.T) {
	f := newTestBuffer(t, nil)
	ctx := context.Background()

	const writes = 8
	for i := 0; i < writes; i++ {
		f.buf.RequestSave(f.snap(t, fmt.Sprintf("edit-%d", i)))
		f.clock.Advance(testDebounce)
	}

	puts := f.store.Puts()
	if len(puts) != writes {
		t.Fatalf("writes = %d, want %d", len(puts), writes)
	}

	keys, err := f.store.ListKeys(ctx, []byte(f.buf.log.Prefix()))
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != DefaultRetentionCount {
		t.Fatalf("entries = %d, want %d", len(keys), DefaultRetentionCount)
	}
	for i, k := range keys {
		if want := puts[writes-DefaultRetentionCount+i]; string(k) != want {
			t.Errorf("kept[%d] = %s, want %s", i, k, want)
		}
	}

	history, err := f.buf.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != DefaultRetentionCount {
		t.Errorf("History() = %d entries, want %d", len(history), DefaultRetentionCount)
	}
	if history[0].Key != puts[writes-1] {
		t.Errorf("History()[0] = %s, want newest %s", history[0].Key, puts[writes-1])
	}
}

func TestBuffer_RetentionConfigurable(t *testing.T) {
	f := newTestBuffer(t, func(c *BufferConfig) { c.RetentionCount = 2 })
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := f.buf.ForceSave(ctx, f.snap(t, fmt.Sprintf("v%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	history, err := f.buf.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Errorf("History() = %d entries, want 2", len(history))
	}
}

func TestBuffer_DisableSuppression(t *testing.T) {
	t.Run("disable then request", func(t *testing.T) {
		f := newTestBuffer(t, nil)

		f.buf.Disable()
		f.buf.RequestSave(f.snap(t, "ignored"))
		f.clock.Advance(2 * testDebounce)

		if n := len(f.store.Puts()); n != 0 {
			t.Errorf("writes = %d, want 0", n)
		}
		if f.buf.Pending() {
			t.Error("disabled buffer should not hold a pending snapshot")
		}
	})

	t.Run("request then disable", func(t *testing.T) {
		f := newTestBuffer(t, nil)

		f.buf.RequestSave(f.snap(t, "dropped at fire time"))
		f.buf.Disable()
		f.clock.Advance(2 * testDebounce)

		if n := len(f.store.Puts()); n != 0 {
			t.Errorf("writes = %d, want 0", n)
		}
	})

	t.Run("re-enable resumes", func(t *testing.T) {
		f := newTestBuffer(t, func(c *BufferConfig) { c.StartDisabled = true })
		if f.buf.Enabled() {
			t.Fatal("StartDisabled buffer reports enabled")
		}

		f.buf.Enable()
		f.buf.RequestSave(f.snap(t, "kept"))
		f.clock.Advance(testDebounce)

		if n := len(f.store.Puts()); n != 1 {
			t.Errorf("writes = %d, want 1", n)
		}
	})
}

func TestBuffer_ForceBypass(t *testing.T) {
	f := newTestBuffer(t, nil)

	f.buf.Disable()
	s := f.snap(t, "forced")
	if _, err := f.buf.ForceSave(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	if n := len(f.store.Puts()); n != 1 {
		t.Fatalf("writes = %d, want 1 without advancing the clock", n)
	}
	if got := mustLatest(t, f.buf); !got.Equal(s) {
		t.Errorf("Latest() = %q, want forced snapshot", got.Content())
	}
}

func TestBuffer_ForceSaveKeepsPending(t *testing.T) {
	f := newTestBuffer(t, nil)
	ctx := context.Background()

	f.buf.RequestSave(f.snap(t, "debounced"))
	f.clock.Advance(time.Second)
	forced := f.snap(t, "forced")
	if _, err := f.buf.ForceSave(ctx, forced); err != nil {
		t.Fatal(err)
	}
	if !f.buf.Pending() {
		t.Fatal("ForceSave should not cancel the pending snapshot")
	}

	// The older capture is written last.
	f.clock.Advance(testDebounce)
	if n := len(f.store.Puts()); n != 2 {
		t.Fatalf("writes = %d, want 2", n)
	}
	if got := mustLatest(t, f.buf); !got.Equal(forced) {
		t.Errorf("Latest() = %q, want the newer capture", got.Content())
	}

	history, err := f.buf.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || !history[1].CapturedAt.Before(history[0].CapturedAt) {
		t.Errorf("history not ordered by capture time: %+v", history)
	}
}

func TestBuffer_ForceSaveReturnsInfo(t *testing.T) {
	f := newTestBuffer(t, nil)
	ctx := context.Background()

	s := f.snap(t, "forced")
	info, err := f.buf.ForceSave(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if info == nil || info.ID == "" {
		t.Fatalf("ForceSave() info = %+v", info)
	}
	if !info.CapturedAt.Equal(s.CapturedAt()) || info.ContentLength != len("forced") {
		t.Errorf("info = %+v, want the forced snapshot", info)
	}

	got, _, err := f.buf.Load(ctx, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(s) {
		t.Errorf("Load(%s) = %q, want forced", info.ID, got.Content())
	}
}

func TestBuffer_ClearDropsDebouncedWriteInFlight(t *testing.T) {
	f := newTestBuffer(t, nil)
	ctx := context.Background()

	f.buf.RequestSave(f.snap(t, "stale"))

	// Hold the write lock so the timer callback stops after taking the
	// pending snapshot and before writing it.
	f.buf.writeMu.Lock()
	fired := make(chan struct{})
	go func() {
		defer close(fired)
		f.clock.Advance(testDebounce)
	}()
	waitFor(t, func() bool { return !f.buf.Pending() })

	cleared := make(chan error, 1)
	go func() {
		_, err := f.buf.Clear(ctx)
		cleared <- err
	}()
	waitFor(t, func() bool {
		f.buf.mu.Lock()
		defer f.buf.mu.Unlock()
		return f.buf.clears == 1
	})
	f.buf.writeMu.Unlock()

	<-fired
	if err := <-cleared; err != nil {
		t.Fatal(err)
	}

	if n := len(f.store.Puts()); n != 0 {
		t.Errorf("writes = %d, want the in-flight snapshot dropped", n)
	}
	if _, ok := f.buf.Latest(ctx); ok {
		t.Error("Latest() found a snapshot written after Clear")
	}
	if st := f.buf.Status(); !st.LastWriteAt.IsZero() {
		t.Errorf("LastWriteAt = %v, want no write", st.LastWriteAt)
	}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBuffer_LatestCorrectness(t *testing.T) {
	f := newTestBuffer(t, nil)
	ctx := context.Background()

	if _, ok := f.buf.Latest(ctx); ok {
		t.Fatal("Latest() on empty namespace reported a snapshot")
	}
	if _, _, err := f.buf.LatestInfo(ctx); !errors.Is(err, domain.ErrBackupNotFound) {
		t.Fatalf("LatestInfo() = %v, want ErrBackupNotFound", err)
	}

	var last domain.Snapshot
	for _, c := range []string{"t1", "t2", "t3"} {
		last = f.snap(t, c)
		if _, err := f.buf.ForceSave(ctx, last); err != nil {
			t.Fatal(err)
		}
		f.clock.Advance(time.Second)
	}

	if got := mustLatest(t, f.buf); !got.Equal(last) {
		t.Errorf("Latest() = %q captured %v, want t3", got.Content(), got.CapturedAt())
	}
}

func TestBuffer_IdempotentReRead(t *testing.T) {
	f := newTestBuffer(t, nil)

	if _, err := f.buf.ForceSave(context.Background(), f.snap(t, "stable")); err != nil {
		t.Fatal(err)
	}

	first := mustLatest(t, f.buf)
	second := mustLatest(t, f.buf)
	if !first.Equal(second) {
		t.Errorf("re-read differs: %q vs %q", first.Content(), second.Content())
	}
}

func TestBuffer_CorruptEntrySkip(t *testing.T) {
	f := newTestBuffer(t, nil)
	ctx := context.Background()

	for _, c := range []string{"one", "two", "three"} {
		if _, err := f.buf.ForceSave(ctx, f.snap(t, c)); err != nil {
			t.Fatal(err)
		}
		f.clock.Advance(time.Second)
	}

	puts := f.store.Puts()
	newest := puts[len(puts)-1]
	if err := f.store.Store.Put(ctx, []byte(newest), []byte("\x00corrupted")); err != nil {
		t.Fatal(err)
	}

	if got := mustLatest(t, f.buf).Content(); got != "two" {
		t.Errorf("Latest() = %q, want two", got)
	}
}

func TestBuffer_WriteFailure(t *testing.T) {
	var (
		mu       sync.Mutex
		reported []error
	)
	handler := func(ns string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if ns != "diagram-1" {
			t.Errorf("handler namespace = %q", ns)
		}
		reported = append(reported, err)
	}

	f := newTestBuffer(t, nil, WithErrorHandler(handler))
	ctx := context.Background()

	prior := f.snap(t, "prior")
	if _, err := f.buf.ForceSave(ctx, prior); err != nil {
		t.Fatal(err)
	}

	f.store.FailPuts(fmt.Errorf("put: %w", storage.ErrQuotaExceeded))

	_, err := f.buf.ForceSave(ctx, f.snap(t, "too big"))
	if !errors.Is(err, domain.ErrPersistenceWrite) {
		t.Errorf("ForceSave() = %v, want ErrPersistenceWrite", err)
	}
	if !errors.Is(err, domain.ErrQuotaExceeded) || !errors.Is(err, storage.ErrQuotaExceeded) {
		t.Errorf("ForceSave() = %v, want the quota cause in the chain", err)
	}

	f.buf.RequestSave(f.snap(t, "debounced failure"))
	f.clock.Advance(testDebounce)

	mu.Lock()
	n := len(reported)
	mu.Unlock()
	if n != 2 {
		t.Errorf("error handler called %d times, want 2", n)
	}
	if f.buf.LastError() == nil {
		t.Error("LastError() = nil after failed write")
	}
	if st := f.buf.Status(); st.LastError == "" {
		t.Error("Status().LastError is empty after failed write")
	}

	if got := mustLatest(t, f.buf); !got.Equal(prior) {
		t.Errorf("failed writes disturbed prior snapshot: %q", got.Content())
	}

	f.store.FailPuts(nil)
	if _, err := f.buf.ForceSave(ctx, f.snap(t, "recovered")); err != nil {
		t.Fatal(err)
	}
	if f.buf.LastError() != nil {
		t.Errorf("LastError() = %v after a successful write", f.buf.LastError())
	}
}

func TestBuffer_Load(t *testing.T) {
	f := newTestBuffer(t, nil)
	ctx := context.Background()

	if _, err := f.buf.ForceSave(ctx, f.snap(t, "first")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.buf.ForceSave(ctx, f.snap(t, "second")); err != nil {
		t.Fatal(err)
	}

	history, err := f.buf.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}

	got, info, err := f.buf.Load(ctx, history[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content() != "first" || info.ID != history[1].ID {
		t.Errorf("Load(%s) = %q, want first", history[1].ID, got.Content())
	}

	for _, id := range []string{"not-an-id", "01ARZ3NDEKTSV4RRFFQ69G5FAV"} {
		if _, _, err := f.buf.Load(ctx, id); !errors.Is(err, domain.ErrBackupNotFound) {
			t.Errorf("Load(%q) error = %v, want ErrBackupNotFound", id, err)
		}
	}
}

func TestBuffer_Flush(t *testing.T) {
	f := newTestBuffer(t, nil)
	ctx := context.Background()

	if err := f.buf.Flush(ctx); err != nil {
		t.Fatalf("Flush() with nothing pending = %v", err)
	}

	f.buf.RequestSave(f.snap(t, "unsaved"))
	if err := f.buf.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(f.store.Puts()); n != 1 {
		t.Fatalf("writes after Flush = %d, want 1", n)
	}

	f.clock.Advance(2 * testDebounce)
	if n := len(f.store.Puts()); n != 1 {
		t.Errorf("flushed snapshot written again by its timer: %d writes", n)
	}
}

func TestBuffer_Clear(t *testing.T) {
	f := newTestBuffer(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.buf.ForceSave(ctx, f.snap(t, fmt.Sprintf("v%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	f.buf.RequestSave(f.snap(t, "stale"))

	n, err := f.buf.Clear(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Clear() = %d, want 3", n)
	}

	f.clock.Advance(testDebounce)
	if _, ok := f.buf.Latest(ctx); ok {
		t.Error("a pending write survived Clear")
	}
}

func TestBuffer_Close(t *testing.T) {
	f := newTestBuffer(t, nil)
	ctx := context.Background()

	f.buf.RequestSave(f.snap(t, "pending"))
	f.buf.Close()
	f.buf.Close()

	f.clock.Advance(testDebounce)
	f.buf.RequestSave(f.snap(t, "after close"))
	f.clock.Advance(testDebounce)

	if n := len(f.store.Puts()); n != 0 {
		t.Errorf("writes after Close = %d, want 0", n)
	}
	if _, err := f.buf.ForceSave(ctx, f.snap(t, "x")); !errors.Is(err, domain.ErrBufferClosed) {
		t.Errorf("ForceSave after Close = %v, want ErrBufferClosed", err)
	}
}

func TestBuffer_NamespacesCoexist(t *testing.T) {
	clock := newFakeClock()
	store := newCountingStore()
	ctx := context.Background()

	newBuf := func(ns string) *Buffer {
		b, err := NewBuffer(BufferConfig{Namespace: ns, Debounce: testDebounce}, nil, store, WithClock(clock))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(b.Close)
		return b
	}
	a, b := newBuf("a"), newBuf("b")

	for i := 0; i < 7; i++ {
		s, _ := domain.NewSnapshotAt(fmt.Sprintf("a%d", i), nil, clock.Now())
		if _, err := a.ForceSave(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	s, _ := domain.NewSnapshotAt("b0", nil, clock.Now())
	if _, err := b.ForceSave(ctx, s); err != nil {
		t.Fatal(err)
	}

	if got := mustLatest(t, b).Content(); got != "b0" {
		t.Errorf("b Latest = %q", got)
	}
	if got := mustLatest(t, a).Content(); got != "a6" {
		t.Errorf("a Latest = %q", got)
	}
	hb, _ := b.History(ctx)
	if len(hb) != 1 {
		t.Errorf("a's retention touched b: %d entries", len(hb))
	}
}

func TestNewBuffer_InvalidNamespace(t *testing.T) {
	_, err := NewBuffer(BufferConfig{Namespace: "../etc"}, nil, memory.New())
	if !errors.Is(err, domain.ErrNamespaceInvalid) {
		t.Errorf("NewBuffer() = %v, want ErrNamespaceInvalid", err)
	}
}
