// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package file provides an encrypted, file backed cache.Store.

Each store owns one file holding all of its items, sealed with XChaCha20-Poly1305 under a
key from package keybootstrap. Writes replace the file atomically. When another process
rewrites the file, the store reloads it.
*/
package file

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/AzureAD/adal-broker-for-go/apps/cache"
	"github.com/AzureAD/adal-broker-for-go/apps/errors"
	"github.com/AzureAD/adal-broker-for-go/apps/logger"
)

// Option configures a Store.
type Option func(s *Store)

// WithLogger sets the logger for reload events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithoutWatch disables reloading on external changes.
func WithoutWatch() Option {
	return func(s *Store) {
		s.watch = false
	}
}

// PathFor returns the file in dir that holds the cache of authority.
func PathFor(dir, authority string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(authority)))
	return filepath.Join(dir, hex.EncodeToString(sum[:12])+".cache")
}

// Store is a cache.Store persisted to a single encrypted file.
type Store struct {
	path  string
	aead  cipher.AEAD
	log   *slog.Logger
	watch bool

	mu    sync.RWMutex
	items map[string]cache.Item

	watcher *fsnotify.Watcher
	done    chan struct{}
	closeMu sync.Once
}

// Open loads the store at path, creating an empty one if the file does not exist.
// key must be keybootstrap.KeySize bytes. A file that cannot be decrypted with key is
// a configuration error.
func Open(path string, key []byte, options ...Option) (*Store, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfiguration, err, "cache key")
	}
	s := &Store{
		path:  path,
		aead:  aead,
		log:   slog.Default(),
		watch: true,
		items: map[string]cache.Item{},
		done:  make(chan struct{}),
	}
	for _, o := range options {
		o(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(errors.KindConfiguration, err, "cache directory")
	}
	items, err := s.load()
	if err != nil {
		return nil, errors.Wrap(errors.KindConfiguration, err, "opening cache "+path)
	}
	s.items = items

	if s.watch {
		if err := s.startWatch(); err != nil {
			s.log.Warn("cache file watch unavailable", logger.Tag("file"), slog.String("path", path), slog.Any("error", err))
		}
	}
	return s, nil
}

// Close stops watching the file. The store stays usable.
func (s *Store) Close() error {
	var err error
	s.closeMu.Do(func() {
		close(s.done)
		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}

// Get implements cache.Store.Get().
func (s *Store) Get(_ context.Context, key string) (cache.Item, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	return item, ok, nil
}

// Set implements cache.Store.Set().
func (s *Store) Set(_ context.Context, key string, item cache.Item) error {
	return s.update(func(m map[string]cache.Item) { m[key] = item })
}

// Remove implements cache.Store.Remove().
func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.RLock()
	_, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return s.update(func(m map[string]cache.Item) { delete(m, key) })
}

// RemoveAll implements cache.Store.RemoveAll().
func (s *Store) RemoveAll(context.Context) error {
	return s.update(func(m map[string]cache.Item) { clear(m) })
}

// Querier implements cache.Store.Querier().
func (s *Store) Querier() (cache.Querier, bool) {
	return s, true
}

// All implements cache.Querier.All().
func (s *Store) All(ctx context.Context) iter.Seq2[cache.Item, error] {
	return func(yield func(cache.Item, error) bool) {
		s.mu.RLock()
		keys := make([]string, 0, len(s.items))
		for k := range s.items {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]cache.Item, 0, len(keys))
		for _, k := range keys {
			items = append(items, s.items[k])
		}
		s.mu.RUnlock()

		for _, item := range items {
			if err := ctx.Err(); err != nil {
				yield(cache.Item{}, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// update applies fn to a copy of the items, persists the copy and then publishes it.
// A failed write leaves the store unchanged.
func (s *Store) update(fn func(map[string]cache.Item)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]cache.Item, len(s.items)+1)
	for k, v := range s.items {
		next[k] = v
	}
	fn(next)
	if err := s.write(next); err != nil {
		return err
	}
	s.items = next
	return nil
}

func (s *Store) write(items map[string]cache.Item) error {
	plain, err := json.Marshal(items)
	if err != nil {
		return err
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sealed := s.aead.Seal(nonce, nonce, plain, []byte(s.path))

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cache-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *Store) load() (map[string]cache.Item, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return map[string]cache.Item{}, nil
		}
		return nil, err
	}
	n := s.aead.NonceSize()
	if len(b) < n {
		return nil, fmt.Errorf("cache file is truncated")
	}
	plain, err := s.aead.Open(nil, b[:n], b[n:], []byte(s.path))
	if err != nil {
		return nil, fmt.Errorf("cache file cannot be decrypted with this key: %w", err)
	}
	items := map[string]cache.Item{}
	if err := json.Unmarshal(plain, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load()
	if err != nil {
		s.log.Warn("cache file reload failed", logger.Tag("file"), slog.String("path", s.path), slog.Any("error", err))
		return
	}
	s.items = items
	s.log.Debug("cache file reloaded", logger.Tag("file"), slog.String("path", s.path), slog.Int("items", len(items)))
}

// startWatch watches the directory rather than the file: atomic replacement swaps the
// inode, which would drop a watch on the file itself.
func (s *Store) startWatch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return err
	}
	s.watcher = w

	go func() {
		for {
			select {
			case <-s.done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
					s.reload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Debug("fsnotify error", logger.Tag("file"), slog.String("err", err.Error()))
			}
		}
	}()
	return nil
}
