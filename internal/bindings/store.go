package bindings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"

	"github.com/petems/overlay-hotkeys/internal/accel"
	"github.com/petems/overlay-hotkeys/internal/apperr"
	"github.com/petems/overlay-hotkeys/internal/fsutil"
)

const (
	formatVersion = 1
	maxStoreBytes = 64 * 1024
)

// fileFormat is the on-disk shape of the binding store.
type fileFormat struct {
	Version  int               `yaml:"version"`
	Bindings map[string]string `yaml:"bindings"`
}

// Store persists the action → accelerator map in a YAML file.
type Store struct {
	path string
	log  zerolog.Logger

	mu sync.Mutex
}

// NewStore returns a store backed by the file at path. Nothing is read until
// Load is called.
func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{path: path, log: log}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load returns a binding for every known action. Actions absent from the
// file get their default. A file that exists but is not a binding store
// yields a CorruptBindingStore error; callers should fall back to Defaults.
// A file that cannot be read at all is an Internal error.
func (s *Store) Load() (map[Action]accel.Accelerator, error) {
	explicit, err := s.read()
	if err != nil {
		return nil, err
	}
	out := Defaults()
	for a, acc := range explicit {
		out[a] = acc
	}
	return out, nil
}

// List is Load flattened in display order.
func (s *Store) List() ([]Binding, error) {
	m, err := s.Load()
	if err != nil {
		return nil, err
	}
	return Ordered(m), nil
}

// Persisted returns the accelerator written to the file for a, without
// falling back to defaults.
func (s *Store) Persisted(a Action) (accel.Accelerator, bool, error) {
	explicit, err := s.read()
	if err != nil {
		return accel.Accelerator{}, false, err
	}
	acc, ok := explicit[a]
	return acc, ok, nil
}

// Save writes b, keeping the other persisted bindings. A corrupt file is
// replaced; an unreadable one is left alone and the read error returned.
func (s *Store) Save(b Binding) error {
	if !b.Action.Valid() {
		return apperr.New(apperr.UnknownAction, "unknown hotkey action %q", b.Action)
	}
	if b.Accelerator.IsZero() {
		return apperr.New(apperr.InvalidAccelerator, "empty accelerator for %s", b.Action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		if !errors.Is(err, apperr.ErrCorruptBindingStore) {
			return err
		}
		s.log.Warn().Err(err).Str("path", s.path).Msg("Replacing corrupt binding store")
		current = map[Action]accel.Accelerator{}
	}
	current[b.Action] = b.Accelerator
	return s.write(current)
}

// EnsureDefaults persists the default accelerator for every action missing
// from the file, creating the file on first run. It reports whether it
// wrote anything. A corrupt file is left untouched.
func (s *Store) EnsureDefaults() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return false, err
	}
	changed := false
	for _, a := range Actions {
		if _, ok := current[a]; !ok {
			current[a] = Default(a)
			changed = true
		}
	}
	if !changed {
		return false, nil
	}
	return true, s.write(current)
}

func (s *Store) read() (map[Action]accel.Accelerator, error) {
	raw, err := fsutil.ReadFileLimited(s.path, maxStoreBytes)
	if errors.Is(err, os.ErrNotExist) {
		return map[Action]accel.Accelerator{}, nil
	}
	if errors.Is(err, fsutil.ErrTooLarge) {
		return nil, apperr.Wrap(apperr.CorruptBindingStore, err, "read binding store").WithPath(s.path)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "read binding store").WithPath(s.path)
	}

	var ff fileFormat
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&ff); err != nil {
		if errors.Is(err, io.EOF) {
			return map[Action]accel.Accelerator{}, nil
		}
		return nil, apperr.Wrap(apperr.CorruptBindingStore, err, "parse binding store").WithPath(s.path)
	}
	if ff.Version > formatVersion {
		return nil, apperr.New(apperr.CorruptBindingStore, "unsupported binding store version %d", ff.Version).WithPath(s.path)
	}

	out := make(map[Action]accel.Accelerator, len(ff.Bindings))
	for name, rawAccel := range ff.Bindings {
		a := Action(name)
		if !a.Valid() {
			s.log.Warn().Str("action", name).Str("path", s.path).Msg("Ignoring unknown action in binding store")
			continue
		}
		acc, err := accel.Parse(rawAccel)
		if err != nil {
			s.log.Warn().Err(err).Str("action", name).Str("path", s.path).Msg("Ignoring invalid accelerator in binding store")
			continue
		}
		out[a] = acc
	}
	return out, nil
}

func (s *Store) write(m map[Action]accel.Accelerator) error {
	ff := fileFormat{
		Version:  formatVersion,
		Bindings: make(map[string]string, len(m)),
	}
	for a, acc := range m {
		ff.Bindings[string(a)] = acc.String()
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(ff); err != nil {
		return fmt.Errorf("encode binding store: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode binding store: %w", err)
	}

	if err := fsutil.WriteFileAtomic(s.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("save binding store %s: %w", s.path, err)
	}
	s.log.Debug().Str("path", s.path).Int("bindings", len(m)).Msg("Saved binding store")
	return nil
}
