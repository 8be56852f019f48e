package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const fileFormatVersion = 1

// ErrCorruptFile is returned when the credentials file cannot be decoded.
var ErrCorruptFile = errors.New("credentials file corrupt")

type fileDocument struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values,omitempty"`
	Sealed  *sealedBlob       `json:"sealed,omitempty"`
}

// FileStore persists values as a JSON document readable only by the owner.
//
// Every operation re-reads the file so separate processes sharing the path
// (for example successive CLI invocations) observe each other's writes.
type FileStore struct {
	mu     sync.Mutex
	path   string
	sealer *sealer
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithPassphrase seals the document with a key derived from passphrase.
func WithPassphrase(passphrase string) FileOption {
	return func(s *FileStore) {
		if passphrase != "" {
			s.sealer = newSealer(passphrase)
		}
	}
}

// NewFileStore creates a FileStore at path. A leading "~/" expands to the
// user's home directory.
func NewFileStore(path string, opts ...FileOption) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("file store path required")
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	s := &FileStore{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the resolved file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

func (s *FileStore) Remove(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := values[k]; ok {
			delete(values, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.save(values)
}

func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	if doc.Version != fileFormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptFile, doc.Version)
	}

	if doc.Sealed != nil {
		if s.sealer == nil {
			return nil, ErrSealBroken
		}
		plain, err := s.sealer.open(doc.Sealed)
		if err != nil {
			return nil, err
		}
		values := map[string]string{}
		if err := json.Unmarshal(plain, &values); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
		}
		return values, nil
	}

	if doc.Values == nil {
		doc.Values = map[string]string{}
	}
	return doc.Values, nil
}

func (s *FileStore) save(values map[string]string) error {
	doc := fileDocument{Version: fileFormatVersion}
	if s.sealer != nil {
		plain, err := json.Marshal(values)
		if err != nil {
			return err
		}
		blob, err := s.sealer.seal(plain)
		if err != nil {
			return err
		}
		doc.Sealed = blob
	} else {
		doc.Values = values
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
