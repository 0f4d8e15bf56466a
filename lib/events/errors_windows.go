// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build windows

package events

import (
	"errors"

	"golang.org/x/sys/windows"
)

func reachedResourceLimit(err error) bool {
	return errors.Is(err, windows.ERROR_NOT_ENOUGH_QUOTA) || errors.Is(err, windows.ERROR_TOO_MANY_OPEN_FILES)
}
