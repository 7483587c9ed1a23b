// Package blob stores evidence screenshots, product artifacts and the payment
// code image as flat files under a single directory.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is the handle-based blob contract the services consume; tests swap
// in an in-memory implementation.
type Store interface {
	Put(ref string, data []byte) error
	Get(ref string) ([]byte, error)
	Exists(ref string) bool
}

type FileStore struct{ dir string }

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// resolve rejects refs that would escape the blob directory.
func (s *FileStore) resolve(ref string) (string, error) {
	clean := filepath.Clean(ref)
	if clean == "." || strings.Contains(clean, "..") || filepath.IsAbs(clean) || strings.Contains(ref, "\x00") {
		return "", fmt.Errorf("invalid blob ref %q", ref)
	}
	return filepath.Join(s.dir, clean), nil
}

func (s *FileStore) Put(ref string, data []byte) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *FileStore) Get(ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (s *FileStore) Exists(ref string) bool {
	path, err := s.resolve(ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// PaymentCodeRef is where the pre-rendered payment code image lives when the
// seller has uploaded one.
const PaymentCodeRef = "payment/qr_payment.jpg"
