// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build (solaris && !cgo) || (darwin && !cgo) || (android && amd64)

package backend

import (
	"errors"

	"github.com/syncthing/watchit/lib/events"
)

var errNotifyUnsupported = errors.New("native notifications not supported on this build")

func newNotifyBackend(chan<- events.Raw, chan<- error, Options) (Backend, error) {
	return nil, errNotifyUnsupported
}
