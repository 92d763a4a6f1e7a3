package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var errStoreOpen = errors.New("device store is already open")

// Exists reports whether the device store holds a paired device. A store
// that was created but never paired has the schema and no device row.
func (c *Client) Exists() (bool, error) {
	info, err := os.Stat(c.storePath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat device store: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}

	db, err := sql.Open("sqlite", c.dsn())
	if err != nil {
		return false, fmt.Errorf("failed to open device store: %w", err)
	}
	defer db.Close()

	var tables int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'whatsmeow_device'`).Scan(&tables); err != nil {
		return false, fmt.Errorf("failed to inspect device store: %w", err)
	}
	if tables == 0 {
		return false, nil
	}
	var devices int
	if err := db.QueryRow(`SELECT count(*) FROM whatsmeow_device`).Scan(&devices); err != nil {
		return false, fmt.Errorf("failed to count devices: %w", err)
	}
	return devices > 0, nil
}

// Snapshot returns a consistent copy of the device store file.
func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	tmp, err := os.CreateTemp(filepath.Dir(c.storePath), ".snapshot-*.db")
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	// VACUUM INTO refuses to overwrite an existing file.
	_ = os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	db, err := sql.Open("sqlite", c.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}
	defer db.Close()

	quoted := "'" + strings.ReplaceAll(tmpPath, "'", "''") + "'"
	if _, err := db.ExecContext(ctx, "VACUUM INTO "+quoted); err != nil {
		return nil, fmt.Errorf("failed to snapshot device store: %w", err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

// Restore writes a snapshot as the device store. It must run before the
// first Connect.
func (c *Client) Restore(_ context.Context, data []byte) error {
	c.mu.RLock()
	open := c.container != nil
	c.mu.RUnlock()
	if open {
		return errStoreOpen
	}

	dir := filepath.Dir(c.storePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".restore-*.db")
	if err != nil {
		return fmt.Errorf("failed to create restore file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write restore file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close restore file: %w", err)
	}
	if err := os.Rename(tmpPath, c.storePath); err != nil {
		return fmt.Errorf("failed to install device store: %w", err)
	}
	return nil
}

// Remove closes the client and deletes the device store with its journals.
func (c *Client) Remove(context.Context) error {
	if err := c.Close(); err != nil {
		return fmt.Errorf("failed to close device store: %w", err)
	}
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(c.storePath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", c.storePath+suffix, err)
		}
	}
	return nil
}
