// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package events

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"
)

func TestKindPrecedence(t *testing.T) {
	order := []Kind{Modified, Created, Renamed, Removed}
	for i := 1; i < len(order); i++ {
		if order[i] <= order[i-1] {
			t.Errorf("%v must take precedence over %v", order[i], order[i-1])
		}
	}
}

func TestRecursionModeText(t *testing.T) {
	for _, m := range []RecursionMode{NonRecursive, Recursive} {
		bs, err := m.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got RecursionMode
		if err := got.UnmarshalText(bs); err != nil {
			t.Fatal(err)
		}
		if got != m {
			t.Errorf("round trip of %v gave %v", m, got)
		}
	}

	var m RecursionMode
	if err := m.UnmarshalText([]byte("sideways")); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestRenamedEventPaths(t *testing.T) {
	ev := Event{Kind: Renamed, Paths: []string{"/a", "/b"}}
	if ev.From() != "/a" || ev.To() != "/b" {
		t.Errorf("unexpected rename ends %q -> %q", ev.From(), ev.To())
	}
	if s := ev.String(); s != "Renamed /a -> /b" {
		t.Errorf("unexpected string %q", s)
	}

	ev = Event{Kind: Modified, Paths: []string{"/a"}}
	if ev.From() != "/a" || ev.To() != "/a" {
		t.Errorf("single path event must report its path on both ends")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
		is   error
	}{
		{&fs.PathError{Op: "stat", Path: "x", Err: fs.ErrNotExist}, PathNotFound, ErrPathNotFound},
		{fmt.Errorf("wrapped: %w", os.ErrPermission), PermissionDenied, ErrPermissionDenied},
		{errors.New("boom"), OsIntegrationFailure, ErrOsIntegration},
	}

	for _, tc := range cases {
		werr := Classify("watch", "x", tc.err)
		if werr.Kind != tc.kind {
			t.Errorf("%v: got kind %v, expected %v", tc.err, werr.Kind, tc.kind)
		}
		if !errors.Is(werr, tc.is) {
			t.Errorf("%v: does not match sentinel %v", werr, tc.is)
		}
		if !errors.Is(werr, tc.err) {
			t.Errorf("%v: lost cause %v", werr, tc.err)
		}
	}

	orig := NewWatchError("unwatch", "x", NotWatched, nil)
	if got := Classify("watch", "y", orig); got != orig {
		t.Error("an existing WatchError must not be wrapped again")
	}
	if Classify("watch", "x", nil) != nil {
		t.Error("nil error must classify to nil")
	}
}

func TestWatchErrorMessage(t *testing.T) {
	err := NewWatchError("watch", "/tmp/a.txt", PathNotFound, fs.ErrNotExist)
	expected := "watch /tmp/a.txt: path not found: file does not exist"
	if err.Error() != expected {
		t.Errorf("got %q, expected %q", err.Error(), expected)
	}
}
