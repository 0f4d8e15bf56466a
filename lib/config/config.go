// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config implements reading and preparing watcher configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/syncthing/watchit/lib/backend"
	"github.com/syncthing/watchit/lib/events"
	"github.com/syncthing/watchit/lib/util"
)

const (
	// MinDelayS is the shortest debounce window.
	MinDelayS = 0.01
)

var ErrNoPath = errors.New("path configuration without a path")

type Configuration struct {
	DelayS            float64             `json:"delayS" default:"2"`
	MaxWaitS          float64             `json:"maxWaitS"`
	Backend           backend.Kind        `json:"backend" default:"native"`
	PollIntervalMs    int                 `json:"pollIntervalMs" default:"500"`
	BackendBuffer     int                 `json:"backendBuffer" default:"500"`
	IdentityCacheSize int                 `json:"identityCacheSize" default:"16384"`
	Ignores           []string            `json:"ignores"`
	IgnoreFile        string              `json:"ignoreFile"`
	Paths             []PathConfiguration `json:"paths"`
}

type PathConfiguration struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

func (p PathConfiguration) Mode() events.RecursionMode {
	if p.Recursive {
		return events.Recursive
	}
	return events.NonRecursive
}

// New returns a configuration with every default applied.
func New() Configuration {
	var cfg Configuration
	util.SetDefaults(&cfg)
	cfg.Prepare()
	return cfg
}

// Load reads a YAML (or JSON) configuration file. Settings missing from the
// file keep their defaults.
func Load(path string) (Configuration, error) {
	fd, err := os.Open(path)
	if err != nil {
		return Configuration{}, err
	}
	defer fd.Close()
	cfg, err := Read(fd)
	if err != nil {
		return Configuration{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Read(r io.Reader) (Configuration, error) {
	bs, err := io.ReadAll(r)
	if err != nil {
		return Configuration{}, err
	}
	var cfg Configuration
	util.SetDefaults(&cfg)
	if err := yaml.UnmarshalStrict(bs, &cfg); err != nil {
		return Configuration{}, err
	}
	for _, p := range cfg.Paths {
		if p.Path == "" {
			return Configuration{}, ErrNoPath
		}
	}
	cfg.Prepare()
	return cfg, nil
}

// Prepare clamps values into their valid ranges.
func (c *Configuration) Prepare() {
	if c.DelayS <= 0 {
		c.DelayS = 2
	} else if c.DelayS < MinDelayS {
		c.DelayS = MinDelayS
	}
	if c.MaxWaitS < 0 {
		c.MaxWaitS = 0
	}
	if c.MaxWaitS != 0 && c.MaxWaitS < c.DelayS {
		c.MaxWaitS = c.DelayS
	}
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = 500
	}
	if c.BackendBuffer <= 0 {
		c.BackendBuffer = 500
	}
	if c.IdentityCacheSize <= 0 {
		c.IdentityCacheSize = 16384
	}
	c.Ignores = util.UniqueTrimmedStrings(c.Ignores)
}

func (c Configuration) Delay() time.Duration {
	return time.Duration(c.DelayS * float64(time.Second))
}

// MaxWait is the longest a continuously changing path is held back.
func (c Configuration) MaxWait() time.Duration {
	if c.MaxWaitS > 0 {
		return time.Duration(c.MaxWaitS * float64(time.Second))
	}
	return NotifyTimeout(c.Delay())
}

func (c Configuration) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Paths that keep changing must be reported eventually. For short delays
// the ceiling is 6 times the delay, capped at 1 minute. For delays longer
// than 1 minute, the delay and the ceiling are equal.
func NotifyTimeout(delay time.Duration) time.Duration {
	const (
		shortDelay              = 10 * time.Second
		shortDelayMultiplicator = 6
		longDelay               = time.Minute
	)
	if delay < shortDelay {
		return delay * shortDelayMultiplicator
	}
	if delay < longDelay {
		return longDelay
	}
	return delay
}
