// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command watchit prints debounced change events for the given paths until
// interrupted.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/willabides/kongplete"

	"github.com/syncthing/watchit/lib/backend"
	"github.com/syncthing/watchit/lib/config"
	"github.com/syncthing/watchit/lib/events"
	"github.com/syncthing/watchit/lib/logger"
	"github.com/syncthing/watchit/lib/watcher"
)

var l = logger.DefaultLogger.NewFacility("main", "Main package")

type cli struct {
	Paths         []string      `arg:"" optional:"" help:"Paths to watch" type:"path"`
	Recursive     bool          `short:"r" help:"Watch directories recursively"`
	Delay         time.Duration `help:"Quiet period before changes are reported (default 2s)"`
	MaxWait       time.Duration `help:"Longest a continuously changing path is held back"`
	Backend       string        `help:"Event source: native, fsnotify or poll"`
	Ignore        []string      `help:"Ignore pattern, may be given multiple times"`
	IgnoreFile    string        `help:"File with ignore patterns, one per line" type:"existingfile"`
	Config        string        `help:"Configuration file" type:"existingfile" env:"WATCHIT_CONFIG"`
	MetricsListen string        `help:"Address to serve Prometheus metrics on" env:"WATCHIT_METRICS_LISTEN"`
	JSON          bool          `help:"Print events as JSON lines"`
	Debug         []string      `help:"Enable debug output for the given facilities" placeholder:"FACILITY"`
}

func main() {
	var params cli
	parser := kong.Must(&params, kong.Description("Print debounced filesystem change events."))
	kongplete.Complete(parser)
	_, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	for _, facility := range params.Debug {
		logger.DefaultLogger.SetDebug(facility, true)
	}

	cfg, err := params.configuration()
	if err != nil {
		l.Warnln("Configuration:", err)
		os.Exit(1)
	}
	if len(cfg.Paths) == 0 {
		l.Warnln("Nothing to watch, give at least one path")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if params.MetricsListen != "" {
		go serveMetrics(ctx, params.MetricsListen)
	}

	p := printer{json: params.JSON, enc: json.NewEncoder(os.Stdout)}
	code := run(ctx, cfg, events.HandlerFunc(p.handle))
	cancel()
	os.Exit(code)
}

// run watches the configured paths until ctx is cancelled and returns the
// exit status: 1 when nothing could be watched, 2 when some paths failed.
func run(ctx context.Context, cfg config.Configuration, handler events.Handler) int {
	w, err := watcher.New(handler, watcher.WithConfiguration(cfg))
	if err != nil {
		l.Warnln("Starting watcher:", err)
		return 1
	}

	failed := false
	for _, pc := range cfg.Paths {
		if err := w.Watch(pc.Path, pc.Mode()); err != nil {
			l.Warnln("Watching:", err)
			failed = true
			continue
		}
		l.Infof("Watching %s (%v)", pc.Path, pc.Mode())
	}
	if len(w.Watched()) == 0 {
		w.Close()
		l.Warnln("Nothing could be watched")
		return 1
	}

	<-ctx.Done()
	l.Infoln("Exiting")
	if err := w.Close(); err != nil {
		l.Warnln("Closing watcher:", err)
	}
	if failed {
		return 2
	}
	return 0
}

// configuration merges the command line into the configuration file, if
// any. Flags win over the file; paths from both are watched.
func (c cli) configuration() (config.Configuration, error) {
	cfg := config.New()
	if c.Config != "" {
		var err error
		if cfg, err = config.Load(c.Config); err != nil {
			return config.Configuration{}, err
		}
	}

	if c.Delay > 0 {
		cfg.DelayS = c.Delay.Seconds()
	}
	if c.MaxWait > 0 {
		cfg.MaxWaitS = c.MaxWait.Seconds()
	}
	if c.Backend != "" {
		var kind backend.Kind
		if err := kind.UnmarshalText([]byte(c.Backend)); err != nil {
			return config.Configuration{}, err
		}
		cfg.Backend = kind
	}
	cfg.Ignores = append(cfg.Ignores, c.Ignore...)
	if c.IgnoreFile != "" {
		cfg.IgnoreFile = c.IgnoreFile
	}
	for _, path := range c.Paths {
		cfg.Paths = append(cfg.Paths, config.PathConfiguration{Path: path, Recursive: c.Recursive})
	}

	cfg.Prepare()
	return cfg, nil
}

// serveMetrics serves Prometheus metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	l.Infoln("Serving metrics on", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	l.Warnln("Metrics listener:", err)
	return err
}

type printer struct {
	json bool
	enc  *json.Encoder
}

type jsonError struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Path  string `json:"path,omitempty"`
}

// handle is only ever called from the watcher's delivery goroutine, so the
// encoder needs no locking.
func (p printer) handle(batch []events.Event, err error) {
	if err != nil {
		p.printError(err)
		return
	}
	for _, ev := range batch {
		if p.json {
			if err := p.enc.Encode(ev); err != nil {
				l.Warnln("Encoding event:", err)
			}
			continue
		}
		fmt.Printf("%s %-8v %s\n", ev.Time.Format(time.RFC3339Nano), ev.Kind, strings.Join(ev.Paths, " -> "))
	}
}

func (p printer) printError(err error) {
	var werr *events.WatchError
	if !p.json {
		l.Warnln(err)
		return
	}
	je := jsonError{Error: err.Error()}
	if errors.As(err, &werr) {
		je.Kind = werr.Kind.String()
		je.Path = werr.Path
	}
	if err := p.enc.Encode(je); err != nil {
		l.Warnln("Encoding error:", err)
	}
}
