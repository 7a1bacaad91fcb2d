package auth

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// SecretFile holds an HMAC key read from disk and reloads it when the file changes.
type SecretFile struct {
	path string

	mu  sync.RWMutex
	key []byte
}

func LoadSecretFile(path string) (*SecretFile, error) {
	s := &SecretFile{path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SecretFile) Key() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

func (s *SecretFile) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("auth: read secret file: %w", err)
	}
	key := bytes.TrimSpace(raw)
	if len(key) == 0 {
		return fmt.Errorf("auth: secret file %s is empty", s.path)
	}
	s.mu.Lock()
	s.key = key
	s.mu.Unlock()
	return nil
}

// Watch reloads the key on writes until ctx ends. The parent directory is
// watched so atomic rename-based replacement is picked up. A failed reload
// keeps the previous key.
func (s *SecretFile) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return err
	}
	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := s.reload(); err != nil {
				log.Warn().Err(err).Str("path", s.path).Msg("auth secret reload failed")
				continue
			}
			log.Info().Str("path", s.path).Msg("auth secret reloaded")
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("path", s.path).Msg("auth secret watcher error")
		}
	}
}
