package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LockFileName sits next to specgen.yml.
const LockFileName = "specgen.lock"

// Lockfile models the specgen.lock contents.
type Lockfile struct {
	Path      string
	Generated string
	Tool      string
	Sources   []*LockedSource
}

// LockedSource pins a git source to the commit its suites were generated from.
type LockedSource struct {
	Name     string
	Version  string
	Commit   string
	Source   string
	Checksum string
}

// NewLockfile constructs an empty lockfile stamped with tool and the current time.
func NewLockfile(tool string) *Lockfile {
	return &Lockfile{
		Generated: time.Now().UTC().Format(time.RFC3339),
		Tool:      strings.TrimSpace(tool),
		Sources:   []*LockedSource{},
	}
}

// LoadLockfile parses specgen.lock from disk.
func LoadLockfile(path string) (*Lockfile, error) {
	if path == "" {
		return nil, fmt.Errorf("lockfile: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("lockfile: resolve %s: %w", path, err)
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var raw lockfileDisk
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("lockfile: parse %s: %w", abs, err)
	}

	lock := raw.toLockfile()
	lock.Path = abs
	return lock, nil
}

// WriteLockfile serialises the lockfile to path, or to lock.Path when path is empty.
func WriteLockfile(lock *Lockfile, path string) error {
	if lock == nil {
		return fmt.Errorf("lockfile: nil lockfile")
	}
	if path == "" {
		if lock.Path == "" {
			return fmt.Errorf("lockfile: missing path")
		}
		path = lock.Path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("lockfile: resolve %s: %w", path, err)
	}

	if lock.Generated == "" {
		lock.Generated = time.Now().UTC().Format(time.RFC3339)
	}
	lock.Path = abs
	lock.normalize()

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(lock.toDisk()); err != nil {
		return fmt.Errorf("lockfile: marshal %s: %w", abs, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("lockfile: encoder close: %w", err)
	}
	if err := os.WriteFile(abs, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("lockfile: write %s: %w", abs, err)
	}
	return nil
}

// Find returns the locked entry for name.
func (l *Lockfile) Find(name string) (*LockedSource, bool) {
	if l == nil {
		return nil, false
	}
	name = sanitizeSegment(name)
	for _, src := range l.Sources {
		if src != nil && src.Name == name {
			return src, true
		}
	}
	return nil, false
}

// Upsert replaces the entry with the same name or adds a new one.
func (l *Lockfile) Upsert(src *LockedSource) {
	if l == nil || src == nil {
		return
	}
	src.Name = sanitizeSegment(src.Name)
	for i, existing := range l.Sources {
		if existing != nil && existing.Name == src.Name {
			l.Sources[i] = src
			return
		}
	}
	l.Sources = append(l.Sources, src)
	l.normalize()
}

func (l *Lockfile) normalize() {
	if l == nil {
		return
	}
	l.Tool = strings.TrimSpace(l.Tool)
	kept := l.Sources[:0]
	for _, src := range l.Sources {
		if src == nil {
			continue
		}
		src.Name = sanitizeSegment(src.Name)
		src.Version = strings.TrimSpace(src.Version)
		src.Commit = strings.TrimSpace(src.Commit)
		src.Source = strings.TrimSpace(src.Source)
		src.Checksum = strings.TrimSpace(src.Checksum)
		kept = append(kept, src)
	}
	l.Sources = kept
	sort.SliceStable(l.Sources, func(i, j int) bool {
		return l.Sources[i].Name < l.Sources[j].Name
	})
}

func (l *Lockfile) toDisk() lockfileDisk {
	sources := make([]lockfileSource, 0, len(l.Sources))
	for _, src := range l.Sources {
		sources = append(sources, lockfileSource{
			Name:     src.Name,
			Version:  src.Version,
			Commit:   src.Commit,
			Source:   src.Source,
			Checksum: src.Checksum,
		})
	}
	return lockfileDisk{
		Generated: l.Generated,
		Tool:      l.Tool,
		Sources:   sources,
	}
}

type lockfileDisk struct {
	Generated string           `yaml:"generated"`
	Tool      string           `yaml:"tool"`
	Sources   []lockfileSource `yaml:"sources"`
}

type lockfileSource struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	Commit   string `yaml:"commit"`
	Source   string `yaml:"source"`
	Checksum string `yaml:"checksum"`
}

func (d lockfileDisk) toLockfile() *Lockfile {
	lock := &Lockfile{
		Generated: strings.TrimSpace(d.Generated),
		Tool:      strings.TrimSpace(d.Tool),
		Sources:   make([]*LockedSource, 0, len(d.Sources)),
	}
	for _, src := range d.Sources {
		lock.Sources = append(lock.Sources, &LockedSource{
			Name:     src.Name,
			Version:  src.Version,
			Commit:   src.Commit,
			Source:   src.Source,
			Checksum: src.Checksum,
		})
	}
	lock.normalize()
	return lock
}
