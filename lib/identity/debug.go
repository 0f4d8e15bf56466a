// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package identity

import (
	"github.com/syncthing/watchit/lib/logger"
)

var l = logger.DefaultLogger.NewFacility("identity", "File identity tracking and rename correlation")
