package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"photodb/internal/photodb"
)

// FileSystemVault keeps ledger snapshots in a directory, usually on a
// second disk. Each snapshot is a pair of files:
//
//	<root>/snapshots/<name>.db       latest snapshot
//	<root>/snapshots/<name>.version  ID of the operation that wrote it
//
// The version file is written after the snapshot, so a crash between the
// two leaves a lower version and the next upload repeats the work.
type FileSystemVault struct {
	name string
	root string
	dir  string
}

// NewFileSystemVault creates root/snapshots if needed.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	dir := filepath.Join(root, "snapshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating vault %s: %w", root, err)
	}
	return &FileSystemVault{name: name, root: root, dir: dir}, nil
}

func (v *FileSystemVault) PutSnapshot(ctx context.Context, name string, r io.Reader, size int64, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := replaceFile(v.snapshotPath(name), r, size); err != nil {
		return fmt.Errorf("storing snapshot %s: %w", name, err)
	}
	stamp := strconv.FormatInt(version, 10)
	if err := replaceFile(v.versionPath(name), strings.NewReader(stamp), int64(len(stamp))); err != nil {
		return fmt.Errorf("storing snapshot %s version: %w", name, err)
	}
	return nil
}

func (v *FileSystemVault) GetSnapshot(ctx context.Context, name string, w io.Writer) error {
	f, err := os.Open(v.snapshotPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("opening snapshot %s: %w", name, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading snapshot %s: %w", name, err)
	}
	return nil
}

// SnapshotVersion returns 0 when name has never been stored.
func (v *FileSystemVault) SnapshotVersion(ctx context.Context, name string) (int64, error) {
	data, err := os.ReadFile(v.versionPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading snapshot %s version: %w", name, err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("snapshot %s has a corrupt version file: %w", name, err)
	}
	return version, nil
}

// ValidateSetup checks that the vault root and its snapshot directory exist.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	for _, dir := range []string{v.root, v.dir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault %s: %w", v.name, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault %s: %s is not a directory", v.name, dir)
		}
	}
	return nil
}

func (v *FileSystemVault) snapshotPath(name string) string {
	return filepath.Join(v.dir, name+".db")
}

func (v *FileSystemVault) versionPath(name string) string {
	return filepath.Join(v.dir, name+".version")
}

// replaceFile copies exactly size bytes from r into a temp file next to dest
// and renames it over dest. dest is untouched on any failure.
func replaceFile(dest string, r io.Reader, size int64) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n != size {
		return sizeMismatch(size, n)
	}
	return os.Rename(tmp.Name(), dest)
}

var _ photodb.Vault = (*FileSystemVault)(nil)
