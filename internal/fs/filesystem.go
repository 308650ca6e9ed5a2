package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"photodb/internal/photodb"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct {
	extensions map[string]struct{}
	ignore     []string
	logger     photodb.Logger
}

// NewOSFilesystemManager creates a filesystem manager that discovers files
// with one of the given extensions (case-insensitive, with or without the
// leading dot). ignore holds extra patterns applied on top of any
// .photodbignore file found at the walk root. Entries skipped during a walk
// are reported to logger; nil discards them.
func NewOSFilesystemManager(extensions []string, ignore []string, logger photodb.Logger) *OSFilesystemManager {
	if logger == nil {
		logger = photodb.NewNopLogger()
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts[e] = struct{}{}
		}
	}
	return &OSFilesystemManager{extensions: exts, ignore: ignore, logger: logger}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*photodb.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return photodb.NewPath(absPath, info.IsDir(), info), nil
}

// FindImages walks root and returns RAW candidates in lexical order.
// Hidden files and directories (leading '.') are skipped, which also keeps
// the ledger directory out of the results. Entries below root that cannot be
// read are logged and skipped; only a failure on root itself is returned.
func (m *OSFilesystemManager) FindImages(root *photodb.Path) ([]*photodb.Path, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	patterns, err := ReadIgnoreFile(filepath.Join(root.String(), IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher := NewIgnoreMatcher(append(append([]string(nil), m.ignore...), patterns...))

	var paths []*photodb.Path
	err = filepath.WalkDir(root.String(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return m.walkError(root.String(), p, d, err)
		}
		if p == root.String() {
			return nil
		}

		rel, err := filepath.Rel(root.String(), p)
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") || matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !m.hasImageExtension(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return m.walkError(root.String(), p, d, err)
		}
		paths = append(paths, photodb.NewPath(p, false, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return paths, nil
}

// walkError decides how FindImages continues after err at p.
func (m *OSFilesystemManager) walkError(root, p string, d fs.DirEntry, err error) error {
	if p == root {
		return err
	}
	m.logger.Warn("skipping unreadable path", "path", p, "error", err)
	if d != nil && d.IsDir() {
		return filepath.SkipDir
	}
	return nil
}

func (m *OSFilesystemManager) hasImageExtension(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return false
	}
	_, ok := m.extensions[ext]
	return ok
}

// ReadFile loads the whole file into memory.
func (m *OSFilesystemManager) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Exists reports whether anything exists at path. Symlinks are not followed.
func (m *OSFilesystemManager) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// WriteFile atomically creates path with data. It never replaces an existing file.
func (m *OSFilesystemManager) WriteFile(path string, data []byte) error {
	return writeExclusive(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// CopyFile atomically copies src to dst. It never replaces an existing file.
func (m *OSFilesystemManager) CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("source is not a regular file: %s", src)
	}

	return writeExclusive(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// Remove deletes a single file.
func (m *OSFilesystemManager) Remove(path string) error {
	return os.Remove(path)
}

// writeExclusive fills a temp file next to dst and then publishes it with a
// hard link, which fails instead of replacing an existing dst. On
// filesystems without hard links it falls back to a checked rename.
func writeExclusive(dst string, fill func(io.Writer) error) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%s: %w", dst, fs.ErrExist)
	}

	tmp, err := os.CreateTemp(dir, ".photodb-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := fill(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	err = os.Link(tmpPath, dst)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s: %w", dst, fs.ErrExist)
	}
	if !linkUnsupported(err) {
		return fmt.Errorf("publishing file: %w", err)
	}

	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%s: %w", dst, fs.ErrExist)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("publishing file: %w", err)
	}
	return nil
}

// Compile-time check that OSFilesystemManager implements photodb.FilesystemManager interface
var _ photodb.FilesystemManager = (*OSFilesystemManager)(nil)
