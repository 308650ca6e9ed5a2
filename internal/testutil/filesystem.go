package testutil

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"photodb/internal/photodb"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
// It is safe for concurrent use. Operations on a path can be made to fail
// with FailOn.
type MockFilesystemManager struct {
	mu       sync.Mutex
	files    map[string]*MockFile
	failures map[string]error // "op path" -> error
	writes   int
	removes  int
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files:    make(map[string]*MockFile),
		failures: make(map[string]error),
	}
}

// AddFile adds a file and its parent directories to the mock filesystem.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addParents(path)
	m.files[path] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     time.Now(),
	}
}

// AddDirectory adds a directory and its parents to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addParents(path)
	m.files[path] = &MockFile{Permissions: 0755, ModTime: time.Now(), IsDirectory: true}
}

func (m *MockFilesystemManager) addParents(path string) {
	for dir := filepath.Dir(path); dir != path; path, dir = dir, filepath.Dir(dir) {
		if _, ok := m.files[dir]; ok {
			return
		}
		m.files[dir] = &MockFile{Permissions: 0755, ModTime: time.Now(), IsDirectory: true}
	}
}

// FailOn makes op ("read", "write", "copy", "remove", "exists") on path return err.
func (m *MockFilesystemManager) FailOn(op, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+" "+path] = err
}

func (m *MockFilesystemManager) failure(op, path string) error {
	return m.failures[op+" "+path]
}

// Content returns the bytes stored at path.
func (m *MockFilesystemManager) Content(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok || f.IsDirectory {
		return nil, false
	}
	return f.Content, true
}

// Has reports whether a regular file exists at path.
func (m *MockFilesystemManager) Has(path string) bool {
	_, ok := m.Content(path)
	return ok
}

// Files returns the sorted paths of every regular file.
func (m *MockFilesystemManager) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p, f := range m.files {
		if !f.IsDirectory {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Writes returns how many files WriteFile and CopyFile have created.
func (m *MockFilesystemManager) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Removes returns how many files Remove has deleted.
func (m *MockFilesystemManager) Removes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removes
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*photodb.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("stat %s: %w", absPath, fs.ErrNotExist)
	}
	return photodb.NewPath(absPath, file.IsDirectory, newMockFileInfo(absPath, file)), nil
}

// FindImages returns every non-hidden regular file under root, sorted.
// Extensions are not filtered.
func (m *MockFilesystemManager) FindImages(root *photodb.Path) ([]*photodb.Path, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := root.String() + string(filepath.Separator)
	var paths []*photodb.Path
	for p, f := range m.files {
		if f.IsDirectory || !strings.HasPrefix(p, prefix) {
			continue
		}
		if hiddenElement(strings.TrimPrefix(p, prefix)) {
			continue
		}
		paths = append(paths, photodb.NewPath(p, false, newMockFileInfo(p, f)))
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].String() < paths[j].String() })
	return paths, nil
}

func hiddenElement(rel string) bool {
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func (m *MockFilesystemManager) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("read", path); err != nil {
		return nil, err
	}
	f, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
	if f.IsDirectory {
		return nil, fmt.Errorf("read %s: is a directory", path)
	}
	return append([]byte(nil), f.Content...), nil
}

func (m *MockFilesystemManager) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("exists", path); err != nil {
		return false, err
	}
	_, ok := m.files[path]
	return ok, nil
}

func (m *MockFilesystemManager) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("write", path); err != nil {
		return err
	}
	return m.create(path, data)
}

func (m *MockFilesystemManager) CopyFile(src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("copy", src); err != nil {
		return err
	}
	f, ok := m.files[src]
	if !ok || f.IsDirectory {
		return fmt.Errorf("opening source %s: %w", src, fs.ErrNotExist)
	}
	return m.create(dst, f.Content)
}

func (m *MockFilesystemManager) create(path string, data []byte) error {
	if _, ok := m.files[path]; ok {
		return fmt.Errorf("%s: %w", path, fs.ErrExist)
	}
	m.addParents(path)
	m.files[path] = &MockFile{
		Content:     append([]byte(nil), data...),
		Permissions: 0644,
		ModTime:     time.Now(),
	}
	m.writes++
	return nil
}

func (m *MockFilesystemManager) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("remove", path); err != nil {
		return err
	}
	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("remove %s: %w", path, fs.ErrNotExist)
	}
	delete(m.files, path)
	m.removes++
	return nil
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func newMockFileInfo(path string, f *MockFile) *mockFileInfo {
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(f.Content)),
		mode:    f.Permissions,
		modTime: f.ModTime,
		isDir:   f.IsDirectory,
	}
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ photodb.FilesystemManager = (*MockFilesystemManager)(nil)
