package vault

import (
	"context"
	"errors"
	"fmt"

	"photodb/internal/config"
	"photodb/internal/photodb"
)

// ErrSnapshotNotFound is returned by GetSnapshot for a name that was never stored.
var ErrSnapshotNotFound = errors.New("snapshot not found")

func sizeMismatch(want, got int64) error {
	return fmt.Errorf("size mismatch: expected %d bytes, got %d", want, got)
}

// NewVaultFromConfig creates a Vault implementation based on the backup type.
// It returns a nil Vault when backups are disabled.
func NewVaultFromConfig(ctx context.Context, cfg config.BackupConfig) (photodb.Vault, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		v, err := NewS3VaultFromConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
