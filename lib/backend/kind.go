// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package backend

import "fmt"

// Kind selects the mechanism used to learn about filesystem changes.
type Kind int

const (
	// KindNative uses the platform notification API with native recursion
	// where the platform has it.
	KindNative Kind = iota
	// KindFSNotify uses fsnotify, emulating recursion by watching every
	// directory below a recursive root.
	KindFSNotify
	// KindPoll periodically stats the watched tree.
	KindPoll
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindFSNotify:
		return "fsnotify"
	case KindPoll:
		return "poll"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(bs []byte) error {
	switch string(bs) {
	case "native", "":
		*k = KindNative
	case "fsnotify":
		*k = KindFSNotify
	case "poll":
		*k = KindPoll
	default:
		return fmt.Errorf("unknown backend %q", bs)
	}
	return nil
}

func (k *Kind) ParseDefault(str string) error {
	return k.UnmarshalText([]byte(str))
}
