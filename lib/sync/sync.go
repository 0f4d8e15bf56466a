// Copyright (C) 2015 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package sync provides mutexes that, with the "sync" debug facility
// enabled, log whenever a lock is held for longer than a threshold.
package sync

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

type Mutex interface {
	Lock()
	Unlock()
}

type RWMutex interface {
	Mutex
	RLock()
	RUnlock()
}

func NewMutex() Mutex {
	if debug {
		return &loggedMutex{}
	}
	return &sync.Mutex{}
}

func NewRWMutex() RWMutex {
	if debug {
		return &loggedRWMutex{}
	}
	return &sync.RWMutex{}
}

type holder struct {
	at   string
	time time.Time
}

func (h holder) String() string {
	if h.at == "" {
		return "not held"
	}
	return fmt.Sprintf("at %s for %v", h.at, time.Since(h.time))
}

type loggedMutex struct {
	sync.Mutex
	holder holder
}

func (m *loggedMutex) Lock() {
	m.Mutex.Lock()
	m.holder = holder{at: getCaller(), time: time.Now()}
}

func (m *loggedMutex) Unlock() {
	h := m.holder
	m.holder = holder{}
	m.Mutex.Unlock()
	if d := time.Since(h.time); d >= threshold {
		l.Debugf("Mutex held for %v. Locked at %s unlocked at %s", d, h.at, getCaller())
	}
}

type loggedRWMutex struct {
	sync.RWMutex
	holder holder
}

func (m *loggedRWMutex) Lock() {
	start := time.Now()
	m.RWMutex.Lock()
	m.holder = holder{at: getCaller(), time: time.Now()}
	if d := m.holder.time.Sub(start); d >= threshold {
		l.Debugf("RWMutex took %v to lock. Locked at %s", d, m.holder.at)
	}
}

func (m *loggedRWMutex) Unlock() {
	h := m.holder
	m.holder = holder{}
	m.RWMutex.Unlock()
	if d := time.Since(h.time); d >= threshold {
		l.Debugf("RWMutex held for %v. Locked at %s unlocked at %s", d, h.at, getCaller())
	}
}

func getCaller() string {
	_, file, line, _ := runtime.Caller(2)
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
