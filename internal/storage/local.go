package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// LocalStorage はローカルファイルシステムにキーごとの JSON ファイルを保存する Storage 実装。
// key "athena_users" は <baseDir>/athena_users.json に対応する。
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage は LocalStorage を生成し、baseDir を作成する。
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

func (s *LocalStorage) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(s.baseDir, key+".json"), nil
}

func (s *LocalStorage) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read: %w", err)
	}
	return b, nil
}

// Set は一時ファイルに書き込んでから rename するため、途中でクラッシュしても
// 既存の値が壊れることはない。
func (s *LocalStorage) Set(_ context.Context, key string, value []byte) error {
	dest, err := s.path(key)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(s.baseDir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(value); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("storage: write: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: close: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

func (s *LocalStorage) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove: %w", err)
	}
	return nil
}

func (s *LocalStorage) Ping(_ context.Context) error {
	_, err := os.Stat(s.baseDir)
	return err
}
