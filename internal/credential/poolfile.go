package credential

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// PoolFile exposes the shared credential pool maintained by an external
// refresh process. The refresher rewrites the file; PoolFile watches it and
// reloads on change so callers always snapshot a current view. The file is
// strictly read-only from this side.
type PoolFile struct {
	path string

	mu   sync.RWMutex
	pool []Credential

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// poolDocument matches the on-disk layout written by the refresher.
type poolDocument struct {
	Tokens []Credential `json:"tokens"`
}

// NewPoolFile loads the pool from path. A missing file is not an error; it
// yields an empty pool until the refresher writes one.
func NewPoolFile(path string) (*PoolFile, error) {
	p := &PoolFile{path: path, done: make(chan struct{})}
	if err := p.reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return p, nil
}

// Watch starts reloading the pool whenever the file changes. It watches the
// parent directory because refreshers typically replace the file atomically
// (write + rename), which drops a watch placed on the file itself.
func (p *PoolFile) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	p.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(p.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := p.reload(); err != nil {
					log.WithError(err).Warnf("credential pool: reload %s failed", p.path)
					continue
				}
				log.Debugf("credential pool: reloaded %s (%d tokens)", p.path, len(p.Snapshot()))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("credential pool: watcher error")
			case <-p.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher, if one was started.
func (p *PoolFile) Close() error {
	close(p.done)
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}

// Snapshot returns a copy of the current pool contents.
func (p *PoolFile) Snapshot() []Credential {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Credential, len(p.pool))
	copy(out, p.pool)
	return out
}

func (p *PoolFile) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	var doc poolDocument
	if err = json.Unmarshal(data, &doc); err != nil {
		// Tolerate a bare array as well; early refresher versions wrote one.
		var tokens []Credential
		if errList := json.Unmarshal(data, &tokens); errList != nil {
			return err
		}
		doc.Tokens = tokens
	}
	p.mu.Lock()
	p.pool = doc.Tokens
	p.mu.Unlock()
	return nil
}
