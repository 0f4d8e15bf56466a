// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ignore matches event paths against glob patterns so that
// uninteresting files (editor swap files, build output) never reach the
// debouncer.
package ignore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gobwas/glob"
)

type Pattern struct {
	pattern  string
	match    glob.Glob
	include  bool
	foldCase bool
}

func (p Pattern) String() string {
	ret := p.pattern
	if !p.include {
		ret = "!" + ret
	}
	if p.foldCase {
		ret = "(?i)" + ret
	}
	return ret
}

// A Matcher is immutable once constructed and safe for concurrent use.
// The nil Matcher matches nothing.
type Matcher struct {
	patterns []Pattern
}

// New compiles the given patterns. A pattern without a leading slash
// matches the named file or directory at any depth, a leading slash roots
// it at the filesystem root, a leading "!" makes a later pattern unignore
// what an earlier one would have matched, and "(?i)" folds case. The first
// matching pattern decides.
func New(lines []string) (*Matcher, error) {
	m := &Matcher{}
	for _, line := range lines {
		if err := m.addPattern(line); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Load reads patterns from a file, one per line. Empty lines and lines
// starting with "//" are skipped.
func Load(file string) (*Matcher, error) {
	fd, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return Parse(fd)
}

// Merge returns a matcher trying the patterns of each given matcher in
// turn. Nil matchers are skipped.
func Merge(ms ...*Matcher) *Matcher {
	merged := &Matcher{}
	for _, m := range ms {
		if m != nil {
			merged.patterns = append(merged.patterns, m.patterns...)
		}
	}
	return merged
}

func Parse(r io.Reader) (*Matcher, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return New(lines)
}

func (m *Matcher) addPattern(line string) error {
	line = filepath.ToSlash(strings.TrimSpace(line))
	if line == "" {
		return nil
	}

	pattern := Pattern{
		pattern:  line,
		include:  true,
		foldCase: runtime.GOOS == "darwin" || runtime.GOOS == "windows",
	}

	if strings.HasPrefix(line, "!") {
		line = line[1:]
		pattern.include = false
	}

	if strings.HasPrefix(line, "(?i)") {
		line = line[4:]
		pattern.foldCase = true
	}
	if pattern.foldCase {
		line = strings.ToLower(line)
	}
	pattern.pattern = line

	// A match on a directory also covers everything below it. Patterns
	// that are not rooted match at any depth.
	line = strings.TrimSuffix(line, "/")
	if !strings.HasPrefix(line, "/") && !strings.HasPrefix(line, "**/") {
		line = "**/" + line
	}
	for _, expr := range []string{line, line + "/**"} {
		var err error
		pattern.match, err = glob.Compile(expr, '/')
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern.pattern, err)
		}
		m.patterns = append(m.patterns, pattern)
	}
	return nil
}

// Match reports whether the absolute path is ignored.
func (m *Matcher) Match(path string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}

	path = filepath.ToSlash(path)
	var lowercase string
	for _, pattern := range m.patterns {
		candidate := path
		if pattern.foldCase {
			if lowercase == "" {
				lowercase = strings.ToLower(path)
			}
			candidate = lowercase
		}
		if pattern.match.Match(candidate) {
			return pattern.include
		}
	}
	return false
}

// Patterns returns the patterns in the order they were given, one entry
// per compiled expression.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	ret := make([]string, 0, len(m.patterns))
	for _, pat := range m.patterns {
		ret = append(ret, pat.String())
	}
	return ret
}
