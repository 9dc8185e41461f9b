package cache

import (
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DiskPath = t.TempDir()
	cfg.CleanupInterval = 0
	s, err := NewStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PromotesDiskHits(t *testing.T) {
	s := newTestStore(t)

	key := Key("Привіт", "uk-UA-PolinaNeural", 100)
	if err := s.disk.Put(key, []byte("mp3")); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Get(key); !ok {
		t.Fatal("expected disk hit")
	}
	if _, ok := s.memory.Get(key); !ok {
		t.Error("disk hit was not promoted to memory")
	}
}

func TestStore_PutWritesBothLevels(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put("k", []byte("audio")); err != nil {
		t.Fatal(err)
	}
	mem, disk := s.Stats()
	if mem.Items != 1 || disk.Items != 1 {
		t.Errorf("items memory=%d disk=%d, want 1/1", mem.Items, disk.Items)
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("k"); ok {
		t.Error("Clear left an entry behind")
	}
}

func TestStore_RequiresDiskPath(t *testing.T) {
	if _, err := NewStore(DefaultConfig()); err == nil {
		t.Error("expected an error without a disk path")
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		a, b [3]any
		same bool
	}{
		{"identical", [3]any{"text", "v", 100}, [3]any{"text", "v", 100}, true},
		{"different text", [3]any{"text", "v", 100}, [3]any{"other", "v", 100}, false},
		{"different voice", [3]any{"text", "v", 100}, [3]any{"text", "w", 100}, false},
		{"different rate", [3]any{"text", "v", 100}, [3]any{"text", "v", 150}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := Key(tt.a[0].(string), tt.a[1].(string), tt.a[2].(int))
			kb := Key(tt.b[0].(string), tt.b[1].(string), tt.b[2].(int))
			if (ka == kb) != tt.same {
				t.Errorf("Key equality = %v, want %v", ka == kb, tt.same)
			}
			if len(ka) != 32 {
				t.Errorf("key length = %d, want 32", len(ka))
			}
		})
	}
}
