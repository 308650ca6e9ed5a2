package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-tree ignore file read from the root of an import source.
const IgnoreFileName = ".photodbignore"

// ignoreRule is one compiled line of an ignore list.
type ignoreRule struct {
	glob    string
	negate  bool // "!pattern" re-includes what an earlier rule excluded
	dirOnly bool // "pattern/" only matches directories
	rooted  bool // pattern contains '/': matched against the whole relative path
}

// IgnoreMatcher decides which entries of an import source are skipped.
//
// Syntax is a small subset of gitignore: globs use filepath.Match rules,
// a pattern containing '/' is matched against the slash-separated path
// relative to the source root (a leading '/' is optional), other patterns
// match the base name at any depth, a trailing '/' restricts a pattern to
// directories and a leading '!' negates it. The last matching rule wins.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher compiles patterns. Blank lines and '#' comments are skipped.
func NewIgnoreMatcher(patterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range patterns {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var r ignoreRule
		if rest, ok := strings.CutPrefix(line, "!"); ok {
			r.negate, line = true, rest
		}
		if rest, ok := strings.CutSuffix(line, "/"); ok {
			r.dirOnly, line = true, rest
		}
		if strings.Contains(line, "/") {
			r.rooted, line = true, strings.TrimPrefix(line, "/")
		}
		if line == "" {
			continue
		}
		r.glob = line
		m.rules = append(m.rules, r)
	}
	return m
}

// Match reports whether the entry at rel (relative to the source root) is ignored.
func (m *IgnoreMatcher) Match(rel string, isDir bool) bool {
	slashed := filepath.ToSlash(rel)
	base := path.Base(slashed)

	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		subject := base
		if r.rooted {
			subject = slashed
		}
		// A malformed glob never matches.
		if ok, err := path.Match(r.glob, subject); err == nil && ok {
			ignored = !r.negate
		}
	}
	return ignored
}

// ParseIgnorePatterns returns the lines of r.
func ParseIgnorePatterns(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore patterns: %w", err)
	}
	return lines, nil
}

// ReadIgnoreFile reads the patterns of an ignore file. A missing file yields no patterns.
func ReadIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()
	return ParseIgnorePatterns(f)
}
