// Package settings persists the user-facing settings (enabled, voice, speed)
// in the configuration file and reports changes made to it.
package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

// Section is the configuration key the settings live under.
const Section = "settings"

// Setting keys, relative to Section.
const (
	KeyEnabled = "enabled"
	KeyVoice   = "voice_id"
	KeySpeed   = "speed_percent"
)

// ErrUnknownKey is returned for keys that are not settings.
var ErrUnknownKey = errors.New("unknown setting")

// ErrNoConfigFile is returned by Save when viper has no file to write to.
var ErrNoConfigFile = errors.New("no configuration file in use")

var aliases = map[string]string{
	"enabled":       KeyEnabled,
	"voice":         KeyVoice,
	"voice_id":      KeyVoice,
	"voiceid":       KeyVoice,
	"speed":         KeySpeed,
	"speed_percent": KeySpeed,
	"speedpercent":  KeySpeed,
}

// Keys lists the setting keys in display order.
func Keys() []string {
	return []string{KeyEnabled, KeyVoice, KeySpeed}
}

// SetDefaults registers the default settings with v.
func SetDefaults(v *viper.Viper) {
	d := ttypes.DefaultSettings()
	v.SetDefault(Section+"."+KeyEnabled, d.Enabled)
	v.SetDefault(Section+"."+KeyVoice, d.VoiceID)
	v.SetDefault(Section+"."+KeySpeed, d.SpeedPercent)
}

// Store reads and writes settings through a viper instance. viper is not
// safe for concurrent use, so every access to it goes through mu.
type Store struct {
	v      *viper.Viper
	logger *log.Logger

	mu   sync.Mutex
	last ttypes.Settings
}

// NewStore creates a store backed by v.
func NewStore(v *viper.Viper) *Store {
	SetDefaults(v)
	return &Store{v: v, logger: log.WithPrefix("settings")}
}

// Load returns the current settings, normalized.
func (s *Store) Load() ttypes.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// load must be called with s.mu held.
func (s *Store) load() ttypes.Settings {
	return tts.NormalizeSettings(ttypes.Settings{
		Enabled:      s.v.GetBool(Section + "." + KeyEnabled),
		VoiceID:      s.v.GetString(Section + "." + KeyVoice),
		SpeedPercent: s.v.GetInt(Section + "." + KeySpeed),
	})
}

// Settings implements status.SettingsSource.
func (s *Store) Settings() ttypes.Settings { return s.Load() }

// Get returns one setting formatted as text.
func (s *Store) Get(key string) (string, error) {
	k, err := canonical(key)
	if err != nil {
		return "", err
	}
	cur := s.Load()
	switch k {
	case KeyEnabled:
		return strconv.FormatBool(cur.Enabled), nil
	case KeyVoice:
		return cur.VoiceID, nil
	default:
		return strconv.Itoa(cur.SpeedPercent), nil
	}
}

// Set parses value for key, saves the result and returns the new settings.
func (s *Store) Set(key, value string) (ttypes.Settings, error) {
	k, err := canonical(key)
	if err != nil {
		return ttypes.Settings{}, err
	}

	next := s.Load()
	switch k {
	case KeyEnabled:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return ttypes.Settings{}, fmt.Errorf("%s must be true or false: %w", k, err)
		}
		next.Enabled = b
	case KeyVoice:
		if strings.TrimSpace(value) == "" {
			return ttypes.Settings{}, fmt.Errorf("%s cannot be empty", k)
		}
		next.VoiceID = strings.TrimSpace(value)
	case KeySpeed:
		n, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
		if err != nil {
			return ttypes.Settings{}, fmt.Errorf("%s must be a number: %w", k, err)
		}
		if n < ttypes.MinSpeedPercent || n > ttypes.MaxSpeedPercent {
			return ttypes.Settings{}, fmt.Errorf("%s must be between %d and %d, got %d",
				k, ttypes.MinSpeedPercent, ttypes.MaxSpeedPercent, n)
		}
		next.SpeedPercent = n
	}

	if err := s.Save(next); err != nil {
		return ttypes.Settings{}, err
	}
	return next, nil
}

// Save writes settings into the configuration file, leaving every other
// section and its comments as they were. A watcher started with Watch does
// not report settings written here.
func (s *Store) Save(settings ttypes.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.v.ConfigFileUsed()
	if path == "" {
		return ErrNoConfigFile
	}
	settings = tts.NormalizeSettings(settings)

	if err := writeSection(path, settings); err != nil {
		return fmt.Errorf("unable to save settings: %w", err)
	}
	if err := s.v.ReadInConfig(); err != nil {
		return fmt.Errorf("unable to reload configuration: %w", err)
	}
	s.last = s.load()
	s.logger.Debug("Settings saved", "path", path)
	return nil
}

// Watch calls fn whenever the configuration file changes the settings, until
// ctx is done. Rewrites that leave the settings alone are not reported.
func (s *Store) Watch(ctx context.Context, fn func(ttypes.Settings)) error {
	s.mu.Lock()
	path := s.v.ConfigFileUsed()
	s.last = s.load()
	s.mu.Unlock()
	if path == "" {
		return ErrNoConfigFile
	}
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to watch settings: %w", err)
	}
	// The directory is watched so atomic renames over the file are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("unable to watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(e.Name) != path || !e.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if next, changed := s.reload(); changed {
					s.logger.Debug("Settings changed on disk", "file", e.Name, "op", e.Op)
					fn(next)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("Settings watcher error", "err", err)
			}
		}
	}()
	return nil
}

func (s *Store) reload() (ttypes.Settings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.v.ReadInConfig(); err != nil {
		s.logger.Debug("Configuration not reloaded", "err", err)
		return ttypes.Settings{}, false
	}
	next := s.load()
	changed := next != s.last
	s.last = next
	return next, changed
}

func canonical(key string) (string, error) {
	k := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), Section+"."))
	if c, ok := aliases[k]; ok {
		return c, nil
	}
	known := Keys()
	sort.Strings(known)
	return "", fmt.Errorf("%w %q (known: %s)", ErrUnknownKey, key, strings.Join(known, ", "))
}

func writeSection(path string, settings ttypes.Settings) error {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return errors.New("configuration root is not a mapping")
	}

	var value yaml.Node
	if err := value.Encode(settings); err != nil {
		return err
	}

	replaced := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == Section {
			value.HeadComment = root.Content[i+1].HeadComment
			root.Content[i+1] = &value
			replaced = true
			break
		}
	}
	if !replaced {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: Section},
			&value,
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
