package caption

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// maxPageSize caps how much of a page is read.
const maxPageSize = 8 * 1024 * 1024

// Source yields the current player HTML.
type Source interface {
	// Read returns the page as it is now.
	Read(ctx context.Context) ([]byte, error)

	// Changes delivers a value after the page changed. Any number of changes
	// between two reads collapse into one notification. A nil channel means
	// the source can only be polled.
	Changes() <-chan struct{}

	// Close releases watchers and connections.
	Close() error
}

// FileSource reads an HTML snapshot file and watches it with fsnotify.
type FileSource struct {
	path    string
	watcher *fsnotify.Watcher
	changes chan struct{}
	logger  *log.Logger

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewFileSource watches the directory containing path, so that editors and
// dumpers that replace the file atomically are still noticed.
func NewFileSource(path string) (*FileSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	s := &FileSource{
		path:    abs,
		watcher: watcher,
		changes: make(chan struct{}, 1),
		logger:  log.WithPrefix("caption"),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.watch()
	return s, nil
}

// Read returns the file contents. A missing file reads as an empty page.
func (s *FileSource) Read(context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) > maxPageSize {
		return nil, fmt.Errorf("page too large: %d bytes", len(data))
	}
	return data, nil
}

// Changes implements Source.
func (s *FileSource) Changes() <-chan struct{} { return s.changes }

// Close stops the watcher.
func (s *FileSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		s.wg.Wait()
	})
	return err
}

func (s *FileSource) watch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != s.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				s.notify()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Debug("Watcher error", "path", s.path, "err", err)
		}
	}
}

// notify never blocks; a pending notification already covers this change.
func (s *FileSource) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// HTTPSource fetches the page from a URL on every read.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a poll-only source for url.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPSource{url: url, client: &http.Client{Timeout: timeout}}
}

// Read fetches the page. Non-2xx replies are errors.
func (s *HTTPSource) Read(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: %s", s.url, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
}

// Changes returns nil; HTTP pages are polled.
func (s *HTTPSource) Changes() <-chan struct{} { return nil }

// Close releases idle connections.
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

var (
	_ Source = (*FileSource)(nil)
	_ Source = (*HTTPSource)(nil)
)
