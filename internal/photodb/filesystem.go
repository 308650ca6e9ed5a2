package photodb

// FilesystemManager abstracts file access so the engines can be tested
// without touching the real filesystem.
type FilesystemManager interface {
	// Resolve makes rawPath absolute, stats it, and rejects special files.
	Resolve(rawPath string) (*Path, error)

	// FindImages walks root recursively and returns every RAW candidate:
	// regular files with a whitelisted extension that are not hidden,
	// not inside a hidden directory, and not matched by an ignore pattern.
	FindImages(root *Path) ([]*Path, error)

	// ReadFile loads a whole file into memory.
	ReadFile(path string) ([]byte, error)

	// Exists reports whether anything exists at path.
	Exists(path string) (bool, error)

	// WriteFile creates path with data, creating parent directories.
	// The write is atomic and never replaces an existing file: if path
	// already exists the returned error wraps fs.ErrExist.
	WriteFile(path string, data []byte) error

	// CopyFile copies src to dst with the same guarantees as WriteFile.
	CopyFile(src, dst string) error

	// Remove deletes a single file.
	Remove(path string) error
}
