// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !unix && !windows

package identity

import (
	"os"

	"github.com/syncthing/watchit/lib/events"
)

func stableID(path string) (events.StableID, error) {
	if _, err := os.Lstat(path); err != nil {
		return events.StableID{}, err
	}
	return events.StableID{}, errProbeUnsupported
}
