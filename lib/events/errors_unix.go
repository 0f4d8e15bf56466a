// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build unix

package events

import (
	"errors"

	"golang.org/x/sys/unix"
)

// EMFILE and ENFILE are hit on kqueue style backends that hold a
// descriptor per watched file, ENOSPC is what inotify returns once
// max_user_watches is reached.
func reachedResourceLimit(err error) bool {
	return errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE) || errors.Is(err, unix.ENOSPC)
}
