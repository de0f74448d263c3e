// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/compilecrac/lib/clock"
	"github.com/bureau-foundation/compilecrac/lib/crac"
	"github.com/bureau-foundation/compilecrac/lib/image"
	"github.com/bureau-foundation/compilecrac/lib/process"
	"github.com/bureau-foundation/compilecrac/lib/results"
	"github.com/bureau-foundation/compilecrac/lib/tool"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingTool records every argument list it is invoked with. The
// status for an invocation is looked up by its first argument.
type recordingTool struct {
	mu       sync.Mutex
	calls    [][]string
	statuses map[string]int
	runError error
}

func (r *recordingTool) Invoke(ctx context.Context, args []string) (tool.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), args...))
	if r.runError != nil {
		return tool.Result{Status: -1}, r.runError
	}
	return tool.Result{Status: r.statuses[args[0]]}, nil
}

func (r *recordingTool) invocations() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

// fakeFacility records registrations and checkpoint requests.
type fakeFacility struct {
	mu            sync.Mutex
	registered    []crac.Resource
	checkpoints   int
	checkpointErr error
}

func (f *fakeFacility) Register(resource crac.Resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, resource)
	return nil
}

func (f *fakeFacility) CheckpointAndWait(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints++
	return f.checkpointErr
}

func (f *fakeFacility) registrations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registered)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCoordinator(t *testing.T, invoker tool.Invoker, facility crac.Facility) *Coordinator {
	t.Helper()
	coordinator, err := New(Options{
		Invoker:  invoker,
		Facility: facility,
		Clock:    clock.Fake(epoch),
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return coordinator
}

// registered returns a coordinator that completed an empty initial
// wave and registered with facility.
func registered(t *testing.T, invoker tool.Invoker, facility crac.Facility) *Coordinator {
	t.Helper()
	coordinator := newCoordinator(t, invoker, facility)
	if err := coordinator.RunInitial(context.Background(), nil); err != nil {
		t.Fatalf("RunInitial: %v", err)
	}
	if err := coordinator.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return coordinator
}

func TestRunInitialEndToEnd(t *testing.T) {
	t.Parallel()

	invoker := &recordingTool{}
	facility := &fakeFacility{}
	coordinator := newCoordinator(t, invoker, facility)

	if err := coordinator.RunInitial(context.Background(), []string{"a", "b", "--", "c"}); err != nil {
		t.Fatalf("RunInitial: %v", err)
	}
	want := [][]string{{"a.java", "b.java"}, {"c.java"}}
	if got := invoker.invocations(); !reflect.DeepEqual(got, want) {
		t.Errorf("invocations = %q, want %q", got, want)
	}
	if state := coordinator.State(); state != RunningInitial {
		t.Errorf("state after RunInitial = %s, want %s", state, RunningInitial)
	}

	if err := coordinator.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if facility.registrations() != 1 {
		t.Errorf("registrations = %d, want 1", facility.registrations())
	}
	if state := coordinator.State(); state != RegisteredWaiting {
		t.Errorf("state after Register = %s, want %s", state, RegisteredWaiting)
	}
	if err := coordinator.RequestCheckpointAndWait(context.Background()); err != nil {
		t.Fatalf("RequestCheckpointAndWait: %v", err)
	}
	if facility.checkpoints != 1 {
		t.Errorf("checkpoints = %d, want 1", facility.checkpoints)
	}
}

func TestRunInitialFailFast(t *testing.T) {
	t.Parallel()

	invoker := &recordingTool{statuses: map[string]int{"b.java": 3}}
	facility := &fakeFacility{}
	coordinator := newCoordinator(t, invoker, facility)

	err := coordinator.RunInitial(context.Background(), []string{"a", "--", "b", "--", "c"})
	var statusError *tool.StatusError
	if !errors.As(err, &statusError) {
		t.Fatalf("RunInitial = %v, want *tool.StatusError", err)
	}
	if statusError.Status != 3 {
		t.Errorf("Status = %d, want 3", statusError.Status)
	}
	if code := process.ExitCode(err); code != 3 {
		t.Errorf("ExitCode = %d, want 3", code)
	}

	want := [][]string{{"a.java"}, {"b.java"}}
	if got := invoker.invocations(); !reflect.DeepEqual(got, want) {
		t.Errorf("invocations = %q, want %q (group 3 must not run)", got, want)
	}
	if state := coordinator.State(); state != Failed {
		t.Errorf("state = %s, want %s", state, Failed)
	}

	if err := coordinator.Register(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Register after failure = %v, want ErrInvalidState", err)
	}
	if facility.registrations() != 0 {
		t.Error("coordinator registered after a failed initial wave")
	}
}

func TestRunInitialToolCannotRun(t *testing.T) {
	t.Parallel()

	cause := errors.New("exec: \"javac\": executable file not found in $PATH")
	coordinator := newCoordinator(t, &recordingTool{runError: cause}, &fakeFacility{})

	err := coordinator.RunInitial(context.Background(), []string{"a"})
	var statusError *tool.StatusError
	if !errors.As(err, &statusError) || statusError.Status != 1 {
		t.Fatalf("RunInitial = %v, want *tool.StatusError with status 1", err)
	}
	if !errors.Is(err, cause) {
		t.Error("status error does not wrap the run failure")
	}
}

func TestLifecycleMisuse(t *testing.T) {
	t.Parallel()

	t.Run("run initial twice", func(t *testing.T) {
		t.Parallel()
		coordinator := newCoordinator(t, &recordingTool{}, &fakeFacility{})
		if err := coordinator.RunInitial(context.Background(), []string{"a"}); err != nil {
			t.Fatalf("RunInitial: %v", err)
		}
		if err := coordinator.RunInitial(context.Background(), []string{"a"}); !errors.Is(err, ErrInvalidState) {
			t.Errorf("second RunInitial = %v, want ErrInvalidState", err)
		}
	})

	t.Run("register before run", func(t *testing.T) {
		t.Parallel()
		coordinator := newCoordinator(t, &recordingTool{}, &fakeFacility{})
		if err := coordinator.Register(); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Register = %v, want ErrInvalidState", err)
		}
	})

	t.Run("register twice", func(t *testing.T) {
		t.Parallel()
		facility := &fakeFacility{}
		coordinator := registered(t, &recordingTool{}, facility)
		if err := coordinator.Register(); !errors.Is(err, ErrAlreadyRegistered) {
			t.Errorf("second Register = %v, want ErrAlreadyRegistered", err)
		}
		if facility.registrations() != 1 {
			t.Errorf("registrations = %d, want 1", facility.registrations())
		}
	})

	t.Run("checkpoint before register", func(t *testing.T) {
		t.Parallel()
		facility := &fakeFacility{}
		coordinator := newCoordinator(t, &recordingTool{}, facility)
		err := coordinator.RequestCheckpointAndWait(context.Background())
		var checkpointError *crac.CheckpointError
		if !errors.As(err, &checkpointError) || !errors.Is(err, ErrInvalidState) {
			t.Errorf("RequestCheckpointAndWait = %v, want *crac.CheckpointError wrapping ErrInvalidState", err)
		}
		if facility.checkpoints != 0 {
			t.Error("facility asked to checkpoint an unregistered coordinator")
		}
	})

	t.Run("restore before register", func(t *testing.T) {
		t.Parallel()
		coordinator := newCoordinator(t, &recordingTool{}, &fakeFacility{})
		err := coordinator.AfterRestore(crac.WithNewArguments(context.Background(), []string{"x"}))
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("AfterRestore = %v, want ErrInvalidState", err)
		}
	})
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Facility: &fakeFacility{}}); err == nil {
		t.Error("New accepted a missing invoker")
	}
	if _, err := New(Options{Invoker: &recordingTool{}}); err == nil {
		t.Error("New accepted a missing facility")
	}
}

func TestAfterRestore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ctx     crac.Context
		want    [][]string
		status  int
		failing map[string]int
	}{
		{
			name: "new arguments",
			ctx:  crac.WithNewArguments(context.Background(), []string{"x", "--", "y"}),
			want: [][]string{{"x.java"}, {"y.java"}},
		},
		{
			name: "absent arguments",
			ctx:  crac.NewContext(context.Background()),
		},
		{
			name: "present but empty",
			ctx:  crac.WithNewArguments(context.Background(), nil),
		},
		{
			name: "only separators",
			ctx:  crac.WithNewArguments(context.Background(), []string{"--", "--"}),
		},
		{
			name:    "failing group",
			ctx:     crac.WithNewArguments(context.Background(), []string{"x", "--", "y", "--", "z"}),
			want:    [][]string{{"x.java"}, {"y.java"}},
			status:  7,
			failing: map[string]int{"y.java": 7},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			invoker := &recordingTool{statuses: test.failing}
			coordinator := registered(t, invoker, &fakeFacility{})

			err := coordinator.AfterRestore(test.ctx)
			if got := invoker.invocations(); !reflect.DeepEqual(got, test.want) {
				t.Errorf("invocations = %q, want %q", got, test.want)
			}
			if test.status == 0 {
				if err != nil {
					t.Fatalf("AfterRestore: %v", err)
				}
				if state := coordinator.State(); state != RegisteredWaiting {
					t.Errorf("state = %s, want %s", state, RegisteredWaiting)
				}
				return
			}
			var statusError *tool.StatusError
			if !errors.As(err, &statusError) || statusError.Status != test.status {
				t.Fatalf("AfterRestore = %v, want status %d", err, test.status)
			}
			if state := coordinator.State(); state != Failed {
				t.Errorf("state = %s, want %s", state, Failed)
			}
		})
	}
}

func TestRepeatedRestores(t *testing.T) {
	t.Parallel()

	invoker := &recordingTool{}
	coordinator := registered(t, invoker, &fakeFacility{})
	for _, arguments := range [][]string{{"one"}, {"two", "--", "three"}} {
		if err := coordinator.AfterRestore(crac.WithNewArguments(context.Background(), arguments)); err != nil {
			t.Fatalf("AfterRestore(%q): %v", arguments, err)
		}
	}
	if got := coordinator.Invocations(); got != 3 {
		t.Errorf("Invocations() = %d, want 3", got)
	}
	if got := coordinator.Waves(); got != 3 {
		t.Errorf("Waves() = %d, want 3 (initial plus two restores)", got)
	}
}

func TestRequestCheckpointFailures(t *testing.T) {
	t.Parallel()

	t.Run("unsupported facility", func(t *testing.T) {
		t.Parallel()
		coordinator := registered(t, &recordingTool{}, crac.NewUnsupported(testLogger()))
		err := coordinator.RequestCheckpointAndWait(context.Background())
		var checkpointError *crac.CheckpointError
		if !errors.As(err, &checkpointError) || !errors.Is(err, crac.ErrUnsupported) {
			t.Fatalf("RequestCheckpointAndWait = %v, want *crac.CheckpointError wrapping ErrUnsupported", err)
		}
		if process.ExitCode(err) != 1 {
			t.Errorf("ExitCode = %d, want 1", process.ExitCode(err))
		}
	})

	t.Run("plain facility error is wrapped", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("disk full")
		facility := &fakeFacility{checkpointErr: cause}
		coordinator := registered(t, &recordingTool{}, facility)
		err := coordinator.RequestCheckpointAndWait(context.Background())
		var checkpointError *crac.CheckpointError
		if !errors.As(err, &checkpointError) || !errors.Is(err, cause) {
			t.Fatalf("RequestCheckpointAndWait = %v, want *crac.CheckpointError wrapping the cause", err)
		}
		if facility.checkpoints != 1 {
			t.Errorf("checkpoints = %d, want exactly 1 (no retry)", facility.checkpoints)
		}
	})
}

func TestCustomSeparatorAndSuffix(t *testing.T) {
	t.Parallel()

	invoker := &recordingTool{}
	coordinator, err := New(Options{
		Invoker:   invoker,
		Facility:  &fakeFacility{},
		Separator: "::",
		Suffix:    ".kt",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := coordinator.RunInitial(context.Background(), []string{"a", "::", "b", "--"}); err != nil {
		t.Fatalf("RunInitial: %v", err)
	}
	want := [][]string{{"a.kt"}, {"b.kt", "--.kt"}}
	if got := invoker.invocations(); !reflect.DeepEqual(got, want) {
		t.Errorf("invocations = %q, want %q", got, want)
	}
}

func TestSnapshotFactory(t *testing.T) {
	t.Parallel()

	original, err := New(Options{
		Invoker:   &recordingTool{},
		Facility:  &fakeFacility{},
		Separator: "::",
		Suffix:    ".kt",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := original.RunInitial(context.Background(), []string{"a", "::", "b"}); err != nil {
		t.Fatalf("RunInitial: %v", err)
	}
	if original.Kind() != Kind {
		t.Errorf("Kind() = %q, want %q", original.Kind(), Kind)
	}
	state, err := original.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	invoker := &recordingTool{}
	resource, err := Factory(Options{Invoker: invoker, Facility: &fakeFacility{}})(state)
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	restored := resource.(*Coordinator)
	if restored.State() != RegisteredWaiting {
		t.Errorf("restored state = %s, want %s", restored.State(), RegisteredWaiting)
	}
	if restored.Waves() != 1 || restored.Invocations() != 2 {
		t.Errorf("restored counters = %d waves, %d invocations; want 1, 2", restored.Waves(), restored.Invocations())
	}
	if err := restored.Register(); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("Register on restored coordinator = %v, want ErrAlreadyRegistered", err)
	}

	if err := restored.AfterRestore(crac.WithNewArguments(context.Background(), []string{"x", "::", "y"})); err != nil {
		t.Fatalf("AfterRestore: %v", err)
	}
	want := [][]string{{"x.kt"}, {"y.kt"}}
	if got := invoker.invocations(); !reflect.DeepEqual(got, want) {
		t.Errorf("restored invocations = %q, want %q", got, want)
	}

	if _, err := Factory(Options{Invoker: invoker, Facility: &fakeFacility{}})([]byte{0xff}); err == nil {
		t.Error("Factory accepted a corrupt snapshot")
	}
}

func TestCheckpointRestoreCycle(t *testing.T) {
	t.Parallel()

	directory := t.TempDir()
	resultsPath := filepath.Join(directory, "results.jsonl")
	halted := 0

	newFacility := func() *crac.ImageFacility {
		store, err := image.NewStore(image.StoreOptions{
			Directory:   filepath.Join(directory, "image"),
			Compression: image.CompressionLZ4,
		})
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		facility, err := crac.NewImageFacility(imageOptions(store, &halted))
		if err != nil {
			t.Fatalf("NewImageFacility: %v", err)
		}
		return facility
	}
	openResults := func() *results.Log {
		log, err := results.Open(resultsPath, clock.Fake(epoch), testLogger())
		if err != nil {
			t.Fatalf("results.Open: %v", err)
		}
		t.Cleanup(func() { log.Close() })
		return log
	}

	// First execution.
	initialTool := &recordingTool{}
	firstFacility := newFacility()
	first, err := New(Options{
		Invoker:  initialTool,
		Facility: firstFacility,
		Results:  openResults(),
		Clock:    clock.Fake(epoch),
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.RunInitial(context.Background(), []string{"warmup"}); err != nil {
		t.Fatalf("RunInitial: %v", err)
	}
	if err := first.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := first.RequestCheckpointAndWait(context.Background()); err != nil {
		t.Fatalf("RequestCheckpointAndWait: %v", err)
	}
	if halted != 1 {
		t.Fatalf("halted = %d, want 1", halted)
	}

	// Restored execution.
	restoredTool := &recordingTool{}
	secondFacility := newFacility()
	err = secondFacility.RegisterFactory(Kind, Factory(Options{
		Invoker:  restoredTool,
		Facility: secondFacility,
		Results:  openResults(),
		Clock:    clock.Fake(epoch),
		Logger:   testLogger(),
	}))
	if err != nil {
		t.Fatalf("RegisterFactory: %v", err)
	}
	if err := secondFacility.Restore(crac.WithNewArguments(context.Background(), []string{"x", "--", "y"})); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	want := [][]string{{"x.java"}, {"y.java"}}
	if got := restoredTool.invocations(); !reflect.DeepEqual(got, want) {
		t.Errorf("restored invocations = %q, want %q", got, want)
	}

	resources := secondFacility.Registry().Resources()
	if len(resources) != 1 {
		t.Fatalf("restored registry holds %d resources, want 1", len(resources))
	}
	restored := resources[0].(*Coordinator)
	if restored.Waves() != 2 || restored.Invocations() != 3 {
		t.Errorf("restored counters = %d waves, %d invocations; want 2, 3", restored.Waves(), restored.Invocations())
	}

	// The restored coordinator checkpoints again.
	if err := restored.RequestCheckpointAndWait(context.Background()); err != nil {
		t.Fatalf("second RequestCheckpointAndWait: %v", err)
	}
	if halted != 2 || secondFacility.Generation() != 2 {
		t.Errorf("halted = %d, generation = %d; want 2, 2", halted, secondFacility.Generation())
	}

	file, err := os.Open(resultsPath)
	if err != nil {
		t.Fatalf("opening results: %v", err)
	}
	defer file.Close()
	var types []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var line struct {
			Type string `json:"type"`
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("results line %q: %v", scanner.Text(), err)
		}
		types = append(types, strings.TrimSpace(line.Type+" "+line.Kind))
	}
	wantTypes := []string{
		"wave_start initial", "invocation", "wave_complete",
		"wave_start restore", "invocation", "invocation", "wave_complete",
	}
	if !reflect.DeepEqual(types, wantTypes) {
		t.Errorf("results lines = %q, want %q", types, wantTypes)
	}
}

func TestRestoredFailureExitStatus(t *testing.T) {
	t.Parallel()

	directory := t.TempDir()
	halted := 0
	store, err := image.NewStore(image.StoreOptions{Directory: directory})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	firstFacility, err := crac.NewImageFacility(imageOptions(store, &halted))
	if err != nil {
		t.Fatalf("NewImageFacility: %v", err)
	}
	first := registered(t, &recordingTool{}, firstFacility)
	if err := first.RequestCheckpointAndWait(context.Background()); err != nil {
		t.Fatalf("RequestCheckpointAndWait: %v", err)
	}

	secondFacility, err := crac.NewImageFacility(imageOptions(store, &halted))
	if err != nil {
		t.Fatalf("NewImageFacility: %v", err)
	}
	failing := &recordingTool{statuses: map[string]int{"bad.java": 4}}
	secondFacility.RegisterFactory(Kind, Factory(Options{Invoker: failing, Facility: secondFacility}))

	err = secondFacility.Restore(crac.WithNewArguments(context.Background(), []string{"bad", "--", "never"}))
	var restoreError *crac.RestoreError
	if !errors.As(err, &restoreError) {
		t.Fatalf("Restore = %v, want *crac.RestoreError", err)
	}
	if code := process.ExitCode(err); code != 4 {
		t.Errorf("ExitCode = %d, want the tool's status 4", code)
	}
	if got := len(failing.invocations()); got != 1 {
		t.Errorf("invocations = %d, want 1", got)
	}
}

// imageOptions builds facility options whose halt hook counts
// instead of exiting.
func imageOptions(store *image.Store, halted *int) crac.ImageOptions {
	return crac.ImageOptions{
		Store:     store,
		Component: "compilecrac-test",
		Halt:      func() { *halted++ },
		Clock:     clock.Fake(epoch),
		Logger:    testLogger(),
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	for state, want := range map[State]string{
		Starting:          "starting",
		RunningInitial:    "running-initial",
		RegisteredWaiting: "registered-waiting",
		Restoring:         "restoring",
		RunningRestored:   "running-restored",
		Failed:            "failed",
		State(42):         "state(42)",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
