// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/syncthing/watchit/lib/backend"
	"github.com/syncthing/watchit/lib/events"
	"github.com/syncthing/watchit/lib/identity"
	"github.com/syncthing/watchit/lib/identity/mocks"
)

const testDelay = time.Second

type delivery struct {
	batch []events.Event
	err   error
}

type testWatcher struct {
	*Watcher
	t      *testing.T
	fake   *backend.Fake
	clock  *clock.Mock
	prober *mocks.Prober
	ids    map[string]events.StableID
	out    chan delivery
}

func newTestWatcher(t *testing.T, opts ...Option) *testWatcher {
	t.Helper()
	tw := &testWatcher{
		t:      t,
		clock:  clock.NewMock(),
		prober: &mocks.Prober{},
		ids:    make(map[string]events.StableID),
		out:    make(chan delivery, 10),
	}
	tw.prober.StableIDCalls(func(path string) (events.StableID, error) {
		if id, ok := tw.ids[path]; ok {
			return id, nil
		}
		return events.StableID{}, &identity.ProbeError{Path: path, Kind: identity.Vanished, Err: fs.ErrNotExist}
	})

	opts = append([]Option{
		WithDelay(testDelay),
		WithClock(tw.clock),
		WithProber(tw.prober),
		WithBackendFactory(func(out chan<- events.Raw, errs chan<- error) (backend.Backend, error) {
			tw.fake = backend.NewFake(out, errs)
			return tw.fake, nil
		}),
	}, opts...)
	w, err := New(events.HandlerFunc(func(batch []events.Event, err error) {
		tw.out <- delivery{batch, err}
	}), opts...)
	if err != nil {
		t.Fatal(err)
	}
	tw.Watcher = w
	t.Cleanup(func() { w.Close() })
	return tw
}

// dir returns a fresh, existing directory with a known identity. The ids
// map is only read by the prober from the test goroutine and the debouncer
// goroutine while the test waits on it.
func (tw *testWatcher) dir() string {
	tw.t.Helper()
	dir, err := filepath.EvalSymlinks(tw.t.TempDir())
	if err != nil {
		tw.t.Fatal(err)
	}
	tw.ids[dir] = events.StableID{Device: 1, Inode: uint64(len(tw.ids) + 1)}
	return dir
}

func (tw *testWatcher) inject(op events.Op, path string) {
	tw.t.Helper()
	if !tw.fake.Inject(op, path) {
		tw.t.Fatal("injecting failed")
	}
	tw.sync()
}

func (tw *testWatcher) advance(by time.Duration) {
	tw.t.Helper()
	tw.clock.Add(by)
	tw.sync()
}

func (tw *testWatcher) sync() {
	tw.t.Helper()
	if _, err := tw.debouncer.Pending(context.Background()); err != nil {
		tw.t.Fatal(err)
	}
}

func (tw *testWatcher) receive() delivery {
	tw.t.Helper()
	select {
	case d := <-tw.out:
		return d
	case <-time.After(5 * time.Second):
		tw.t.Fatal("timed out waiting for a delivery")
	}
	return delivery{}
}

func (tw *testWatcher) expectNothing() {
	tw.t.Helper()
	select {
	case d := <-tw.out:
		tw.t.Fatalf("unexpected delivery %v, %v", d.batch, d.err)
	default:
	}
}

func TestWatchUnwatch(t *testing.T) {
	tw := newTestWatcher(t)
	dir := tw.dir()

	if err := tw.Watch(dir, events.Recursive); err != nil {
		t.Fatal(err)
	}
	if got := tw.Watched(); len(got) != 1 || got[0] != dir {
		t.Errorf("watched %v, expected %v", got, dir)
	}
	if got := tw.fake.Subscribed(); len(got) != 1 || got[0] != dir {
		t.Errorf("subscribed %v, expected %v", got, dir)
	}
	if err := tw.Watch(dir, events.NonRecursive); !errors.Is(err, events.ErrAlreadyWatched) {
		t.Errorf("expected already watched, got %v", err)
	}

	if err := tw.Unwatch(dir); err != nil {
		t.Fatal(err)
	}
	if err := tw.Unwatch(dir); !errors.Is(err, events.ErrNotWatched) {
		t.Errorf("expected not watched, got %v", err)
	}
	if got := tw.fake.Subscribed(); len(got) != 0 {
		t.Errorf("still subscribed to %v", got)
	}
	if len(tw.Watched()) != 0 {
		t.Error("path still watched")
	}
}

func TestWatchThroughSymlink(t *testing.T) {
	tw := newTestWatcher(t)
	dir := tw.dir()
	link := filepath.Join(tw.dir(), "link")
	if err := os.Symlink(dir, link); err != nil {
		t.Skip("symlinks not supported:", err)
	}

	if err := tw.Watch(link, events.NonRecursive); err != nil {
		t.Fatal(err)
	}
	if got := tw.Watched(); len(got) != 1 || got[0] != dir {
		t.Errorf("watched %v, expected the resolved %v", got, dir)
	}
	if err := tw.Watch(dir, events.NonRecursive); !errors.Is(err, events.ErrAlreadyWatched) {
		t.Errorf("expected already watched, got %v", err)
	}
	if err := tw.Unwatch(link); err != nil {
		t.Fatal(err)
	}
}

func TestWatchMissing(t *testing.T) {
	tw := newTestWatcher(t)
	missing := filepath.Join(tw.dir(), "missing")
	err := tw.Watch(missing, events.NonRecursive)
	if !errors.Is(err, events.ErrPathNotFound) {
		t.Errorf("expected path not found, got %v", err)
	}
	var werr *events.WatchError
	if !errors.As(err, &werr) || werr.Path != missing {
		t.Errorf("error does not name the path: %v", err)
	}
}

func TestWatchSubscribeFails(t *testing.T) {
	tw := newTestWatcher(t)
	dir := tw.dir()
	tw.fake.SubscribeErr = func(string, events.RecursionMode) error {
		return fs.ErrPermission
	}
	if err := tw.Watch(dir, events.Recursive); !errors.Is(err, events.ErrPermissionDenied) {
		t.Errorf("expected permission denied, got %v", err)
	}
	if len(tw.Watched()) != 0 {
		t.Error("failed path is watched")
	}
}

func TestWatchRollback(t *testing.T) {
	tw := newTestWatcher(t)
	dir := tw.dir()
	delete(tw.ids, dir)
	tw.prober.StableIDReturns(events.StableID{}, &identity.ProbeError{Path: dir, Kind: identity.PermissionDenied, Err: fs.ErrPermission})

	if err := tw.Watch(dir, events.Recursive); !errors.Is(err, events.ErrPermissionDenied) {
		t.Errorf("expected permission denied, got %v", err)
	}
	if len(tw.Watched()) != 0 {
		t.Error("failed path is watched")
	}
	if got := tw.fake.Subscribed(); len(got) != 0 {
		t.Errorf("subscription %v not rolled back", got)
	}
	if got := tw.fake.Unsubscribed(); len(got) != 1 || got[0] != dir {
		t.Errorf("unexpected unsubscriptions %v", got)
	}
}

func TestDelivery(t *testing.T) {
	tw := newTestWatcher(t)
	dir := tw.dir()
	if err := tw.Watch(dir, events.Recursive); err != nil {
		t.Fatal(err)
	}

	file := filepath.Join(dir, "sub", "file")
	tw.inject(events.OpCreate, file)
	tw.inject(events.OpModify, file)
	tw.inject(events.OpModify, file)
	tw.advance(testDelay)

	d := tw.receive()
	if d.err != nil {
		t.Fatal(d.err)
	}
	if len(d.batch) != 1 || d.batch[0].Kind != events.Created || d.batch[0].Paths[0] != file {
		t.Errorf("unexpected batch %v", d.batch)
	}
	tw.advance(10 * testDelay)
	tw.expectNothing()
}

func TestNonRecursiveScope(t *testing.T) {
	tw := newTestWatcher(t)
	dir := tw.dir()
	if err := tw.Watch(dir, events.NonRecursive); err != nil {
		t.Fatal(err)
	}

	tw.inject(events.OpModify, filepath.Join(dir, "sub", "deep"))
	tw.inject(events.OpModify, filepath.Join(filepath.Dir(dir), "sibling"))
	tw.inject(events.OpModify, filepath.Join(dir, "direct"))
	tw.advance(testDelay)

	d := tw.receive()
	if len(d.batch) != 1 || d.batch[0].Paths[0] != filepath.Join(dir, "direct") {
		t.Errorf("unexpected batch %v", d.batch)
	}
}

func TestIgnoredPaths(t *testing.T) {
	tw := newTestWatcher(t, WithIgnores("*.swp"))
	dir := tw.dir()
	if err := tw.Watch(dir, events.Recursive); err != nil {
		t.Fatal(err)
	}
	tw.inject(events.OpCreate, filepath.Join(dir, ".file.swp"))
	tw.advance(testDelay)
	if n, _ := tw.debouncer.Pending(context.Background()); n != 0 {
		t.Errorf("%d paths pending", n)
	}
	tw.expectNothing()
}

func TestIgnoreFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ignores")
	if err := os.WriteFile(file, []byte("// build output\nbuild/\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tw := newTestWatcher(t, WithIgnoreFile(file))
	dir := tw.dir()
	if err := tw.Watch(dir, events.Recursive); err != nil {
		t.Fatal(err)
	}

	tw.inject(events.OpCreate, filepath.Join(dir, "build", "out.o"))
	tw.inject(events.OpCreate, filepath.Join(dir, "main.c"))
	tw.advance(testDelay)

	d := tw.receive()
	if len(d.batch) != 1 || d.batch[0].Paths[0] != filepath.Join(dir, "main.c") {
		t.Errorf("unexpected batch %v", d.batch)
	}
}

func TestMissingIgnoreFile(t *testing.T) {
	_, err := New(events.HandlerFunc(func([]events.Event, error) {}), WithIgnoreFile(filepath.Join(t.TempDir(), "missing")))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUnwatchDropsPending(t *testing.T) {
	tw := newTestWatcher(t)
	kept, dropped := tw.dir(), tw.dir()
	for _, dir := range []string{kept, dropped} {
		if err := tw.Watch(dir, events.Recursive); err != nil {
			t.Fatal(err)
		}
	}

	tw.inject(events.OpModify, filepath.Join(dropped, "a"))
	tw.inject(events.OpModify, filepath.Join(kept, "b"))
	if err := tw.Unwatch(dropped); err != nil {
		t.Fatal(err)
	}
	tw.advance(testDelay)

	d := tw.receive()
	if len(d.batch) != 1 || d.batch[0].Paths[0] != filepath.Join(kept, "b") {
		t.Errorf("unexpected batch %v", d.batch)
	}
}

func TestRuntimeErrors(t *testing.T) {
	tw := newTestWatcher(t)
	dir := tw.dir()
	if err := tw.Watch(dir, events.Recursive); err != nil {
		t.Fatal(err)
	}

	tw.fake.InjectError(events.NewWatchError("watch", dir, events.PathNotFound, errors.New("removed")))
	d := tw.receive()
	if d.batch != nil || !errors.Is(d.err, events.ErrPathNotFound) {
		t.Errorf("unexpected delivery %v, %v", d.batch, d.err)
	}

	// Failures other than a removed root leave the path registered.
	if err := tw.Unwatch(dir); err != nil {
		t.Error(err)
	}
}

func TestRemovedRoot(t *testing.T) {
	tw := newTestWatcher(t)
	dir := tw.dir()
	if err := tw.Watch(dir, events.Recursive); err != nil {
		t.Fatal(err)
	}

	tw.inject(events.OpRemove, dir)
	tw.fake.InjectError(events.NewWatchError("watch", dir, events.PathNotFound, backend.ErrRootRemoved))
	d := tw.receive()
	if !errors.Is(d.err, events.ErrPathNotFound) {
		t.Fatalf("unexpected delivery %v, %v", d.batch, d.err)
	}
	if got := tw.Watched(); len(got) != 0 {
		t.Errorf("removed root still watched: %v", got)
	}
	if got := tw.fake.Unsubscribed(); len(got) != 1 || got[0] != dir {
		t.Errorf("unexpected unsubscriptions %v", got)
	}
	if err := tw.Unwatch(dir); !errors.Is(err, events.ErrNotWatched) {
		t.Errorf("expected not watched, got %v", err)
	}

	// The removal itself is still reported.
	tw.advance(testDelay)
	d = tw.receive()
	if len(d.batch) != 1 || d.batch[0].Kind != events.Removed || d.batch[0].Paths[0] != dir {
		t.Errorf("unexpected batch %v", d.batch)
	}

	// Once back, the path can be watched again and changes arrive.
	if err := tw.Watch(dir, events.Recursive); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "file")
	tw.inject(events.OpModify, file)
	tw.advance(testDelay)
	d = tw.receive()
	if len(d.batch) != 1 || d.batch[0].Paths[0] != file {
		t.Errorf("unexpected batch %v", d.batch)
	}
}

func TestRemovedRootOthersKept(t *testing.T) {
	tw := newTestWatcher(t)
	kept, dropped := tw.dir(), tw.dir()
	for _, dir := range []string{kept, dropped} {
		if err := tw.Watch(dir, events.NonRecursive); err != nil {
			t.Fatal(err)
		}
	}

	// Only the named root is released.
	tw.fake.InjectError(events.NewWatchError("watch", dropped, events.PathNotFound, backend.ErrRootRemoved))
	tw.receive()
	if got := tw.Watched(); len(got) != 1 || got[0] != kept {
		t.Errorf("watched %v, expected %v", got, kept)
	}
}

func TestClose(t *testing.T) {
	tw := newTestWatcher(t)
	a, b := tw.dir(), tw.dir()
	for _, dir := range []string{a, b} {
		if err := tw.Watch(dir, events.NonRecursive); err != nil {
			t.Fatal(err)
		}
	}
	tw.inject(events.OpCreate, filepath.Join(a, "pending"))

	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if got := tw.fake.Unsubscribed(); len(got) != 2 {
		t.Errorf("unexpected unsubscriptions %v", got)
	}
	if err := tw.Watch(a, events.NonRecursive); !errors.Is(err, events.ErrOsIntegration) {
		t.Errorf("expected os integration failure, got %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Error("second close:", err)
	}
	tw.clock.Add(10 * testDelay)
	tw.expectNothing()
}

func TestIndependentWatchers(t *testing.T) {
	first, second := newTestWatcher(t), newTestWatcher(t)
	dir := first.dir()
	second.ids[dir] = first.ids[dir]
	for _, tw := range []*testWatcher{first, second} {
		if err := tw.Watch(dir, events.Recursive); err != nil {
			t.Fatal(err)
		}
	}

	first.inject(events.OpModify, filepath.Join(dir, "a"))
	first.advance(testDelay)
	second.advance(testDelay)

	if d := first.receive(); len(d.batch) != 1 {
		t.Errorf("unexpected batch %v", d.batch)
	}
	second.expectNothing()

	if err := second.Unwatch(dir); err != nil {
		t.Fatal(err)
	}
	if got := first.Watched(); len(got) != 1 {
		t.Error("unwatching in one watcher affected the other")
	}
}
