// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build unix

package identity

import (
	"golang.org/x/sys/unix"

	"github.com/syncthing/watchit/lib/events"
)

func stableID(path string) (events.StableID, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return events.StableID{}, err
	}
	return events.StableID{Device: uint64(st.Dev), Inode: uint64(st.Ino)}, nil
}
