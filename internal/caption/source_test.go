package caption

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "player.html")

	src, err := NewFileSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	// Missing file reads as an empty page.
	if data, err := src.Read(context.Background()); err != nil || len(data) != 0 {
		t.Fatalf("Read() = %q, %v", data, err)
	}

	// Several writes collapse into at most one pending notification.
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(autoCaptions), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-src.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}

	data, err := src.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != autoCaptions {
		t.Errorf("Read() = %q", data)
	}

	// Unrelated files in the same directory are ignored.
	drain(src.Changes())
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-src.Changes():
		t.Error("notification for an unrelated file")
	case <-time.After(100 * time.Millisecond):
	}

	if err := src.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func drain(ch <-chan struct{}) {
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(manualCaptions))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/player", time.Second)
	defer src.Close()

	if src.Changes() != nil {
		t.Error("HTTP source should be poll-only")
	}
	data, err := src.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != manualCaptions {
		t.Errorf("Read() = %q", data)
	}

	if _, err := NewHTTPSource(srv.URL+"/missing", time.Second).Read(context.Background()); err == nil {
		t.Error("expected an error for 404")
	}
}
