package effectchain

import (
	"errors"
	"slices"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-fxgraph/host/queue"
	"github.com/cwbudde/algo-fxgraph/internal/settings"
)

type watcherFixture struct {
	bin   *failingBin
	store *settings.Store
	sched *fakeScheduler
	w     *Watcher
}

func newWatcherFixture(t *testing.T, opts RelinkOptions) *watcherFixture {
	t.Helper()

	names := []string{"a", "b", "c"}
	bin := &failingBin{Bin: newChainBin(t, names, names)}
	store := settings.New(settings.MustSchema("effects",
		settings.Key{Name: KeyPlugins, Kind: settings.KindStrv, Default: names},
	))
	sched := &fakeScheduler{}
	l := &testLayout{seg: bin, names: names, log: zerolog.Nop()}

	w, err := NewWatcher(l, store, KeyPlugins, sched, names, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Cleanup(w.Close)

	return &watcherFixture{bin: bin, store: store, sched: sched, w: w}
}

func TestWatcherSameOrderSchedulesNothing(t *testing.T) {
	t.Parallel()

	f := newWatcherFixture(t, RelinkOptions{})

	if err := f.w.Refresh(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.w.Scheduled() != 0 || len(f.sched.probes) != 0 {
		t.Fatalf("scheduled=%d probes=%d, want none", f.w.Scheduled(), len(f.sched.probes))
	}
}

func TestWatcherChangedOrderSchedulesOneRelink(t *testing.T) {
	t.Parallel()

	f := newWatcherFixture(t, RelinkOptions{})
	next := []string{"c", "a", "b"}

	if err := f.store.SetStrv(KeyPlugins, next); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.w.Scheduled() != 1 || len(f.sched.probes) != 1 {
		t.Fatalf("scheduled=%d probes=%d, want 1", f.w.Scheduled(), len(f.sched.probes))
	}

	// Nothing changes until the stream reaches its quiescent point.
	if got := walkChain(f.bin.Bin); !slices.Equal(got, []string{"a", "b", "c", OutputBoundary}) {
		t.Fatalf("chain changed before the probe ran: %v", got)
	}

	f.sched.run(t)

	if got := walkChain(f.bin.Bin); !slices.Equal(got, append(slices.Clone(next), OutputBoundary)) {
		t.Fatalf("chain=%v", got)
	}

	if f.w.Relinks() != 1 || !slices.Equal(f.w.Wired(), next) {
		t.Fatalf("relinks=%d wired=%v", f.w.Relinks(), f.w.Wired())
	}

	// Refreshing with the same value is a no-op.
	if err := f.w.Refresh(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.w.Scheduled() != 1 {
		t.Fatalf("scheduled=%d after identical refresh", f.w.Scheduled())
	}
}

func TestWatcherCoalescesPendingChanges(t *testing.T) {
	t.Parallel()

	f := newWatcherFixture(t, RelinkOptions{})

	for _, order := range [][]string{{"b", "a", "c"}, {"c", "b", "a"}} {
		if err := f.store.SetStrv(KeyPlugins, order); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(f.sched.probes) != 1 {
		t.Fatalf("probes=%d, want 1", len(f.sched.probes))
	}

	f.sched.run(t)

	if got := walkChain(f.bin.Bin); !slices.Equal(got, []string{"c", "b", "a", OutputBoundary}) {
		t.Fatalf("chain=%v", got)
	}

	if f.w.Relinks() != 1 {
		t.Fatalf("relinks=%d, want 1", f.w.Relinks())
	}
}

func TestWatcherRejectsInvalidOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		order []string
	}{
		{name: "unknown node", order: []string{"a", "b", "x"}},
		{name: "duplicate node", order: []string{"a", "a", "b"}},
		{name: "missing node", order: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newWatcherFixture(t, RelinkOptions{})

			// The store accepts any list; the watcher refuses it.
			if err := f.store.SetStrv(KeyPlugins, tt.order); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if err := f.w.Refresh(); !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("err=%v, want ErrInvalidOrder", err)
			}

			if f.w.Scheduled() != 0 {
				t.Fatalf("scheduled=%d, want 0", f.w.Scheduled())
			}
		})
	}
}

func TestWatcherScheduleFailureIsRetried(t *testing.T) {
	t.Parallel()

	f := newWatcherFixture(t, RelinkOptions{})
	f.sched.err = queue.ErrFull

	if err := f.store.SetStrv(KeyPlugins, []string{"b", "c", "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.w.Refresh(); !errors.Is(err, queue.ErrFull) {
		t.Fatalf("err=%v, want ErrFull", err)
	}

	f.sched.err = nil

	if err := f.w.Refresh(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.sched.run(t)

	if got := f.w.Wired(); !slices.Equal(got, []string{"b", "c", "a"}) {
		t.Fatalf("wired=%v", got)
	}
}

func TestWatcherScheduleFailureKeepsNewerOrder(t *testing.T) {
	t.Parallel()

	f := newWatcherFixture(t, RelinkOptions{})
	f.sched.err = queue.ErrFull

	newer := []string{"c", "b", "a"}

	// A second change lands while the first one is being scheduled.
	f.sched.during = func() {
		if err := f.store.SetStrv(KeyPlugins, newer); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}

	if err := f.store.SetStrv(KeyPlugins, []string{"b", "c", "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.w.Pending(); !slices.Equal(got, newer) {
		t.Fatalf("pending=%v, want %v", got, newer)
	}

	if len(f.sched.probes) != 0 {
		t.Fatalf("probes=%d, want 0", len(f.sched.probes))
	}

	f.sched.err = nil

	if err := f.w.Refresh(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.sched.probes) != 1 {
		t.Fatalf("probes=%d, want 1", len(f.sched.probes))
	}

	f.sched.run(t)

	if got := f.w.Wired(); !slices.Equal(got, newer) {
		t.Fatalf("wired=%v, want %v", got, newer)
	}

	if got := walkChain(f.bin.Bin); !slices.Equal(got, append(slices.Clone(newer), OutputBoundary)) {
		t.Fatalf("chain=%v", got)
	}
}

func TestWatcherRollbackKeepsWiredOrder(t *testing.T) {
	t.Parallel()

	f := newWatcherFixture(t, RelinkOptions{Rollback: true})
	f.bin.failLink = map[[2]string]bool{{"c", "a"}: true}

	if err := f.store.SetStrv(KeyPlugins, []string{"c", "a", "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	probes := f.sched.probes
	f.sched.probes = nil

	if err := probes[0](t.Context()); err == nil {
		t.Fatal("expected the relink to report the rollback")
	}

	if got := f.w.Wired(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("wired=%v, want the old order", got)
	}

	if got := walkChain(f.bin.Bin); !slices.Equal(got, []string{"a", "b", "c", OutputBoundary}) {
		t.Fatalf("chain=%v", got)
	}
}

func TestValidateOrder(t *testing.T) {
	t.Parallel()

	names := []string{"x", "y"}

	if err := ValidateOrder([]string{"y", "x"}, names); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ValidateOrder(nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ValidateOrder([]string{"x"}, names); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("err=%v, want ErrInvalidOrder", err)
	}
}
