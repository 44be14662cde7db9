package chunky

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	serr "github.com/metrosim/substrate/internal/errors"
)

// FormatVersion is the snapshot format written by this build. Restore
// accepts any manifest whose version satisfies FormatConstraint.
const (
	FormatVersion    = "1.0.0"
	FormatConstraint = "^1.0"

	manifestName = "chunks.yaml"
)

// Persistence configures file backing for named slots.
type Persistence struct {
	// Dir is the snapshot directory.
	Dir string `yaml:"dir"`
}

// manifest is the on-disk index of a snapshot.
type manifest struct {
	Version string         `yaml:"version"`
	Slots   []manifestSlot `yaml:"slots"`
}

type manifestSlot struct {
	Name   string `yaml:"name"`
	File   string `yaml:"file"`
	Length int    `yaml:"length"`
}

// Snapshot writes every live persistent slot to the configured directory,
// one data file per slot plus a version-stamped manifest.
func (s *Store) Snapshot() error {
	p := s.config.Persistence
	if p == nil || p.Dir == "" {
		return serr.InvalidImage("store has no persistence configured")
	}

	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return err
	}

	s.mutex.Lock()
	type entry struct {
		name   string
		length int
		data   []byte
	}
	var entries []entry
	for _, c := range s.chunks {
		if !c.live || c.name == "" {
			continue
		}
		base, err := s.resolve(c)
		if err != nil {
			s.mutex.Unlock()
			return err
		}
		data := make([]byte, c.length)
		copy(data, base[:c.length])
		entries = append(entries, entry{name: c.name, length: c.length, data: data})
	}
	s.mutex.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	m := manifest{Version: FormatVersion}
	for _, e := range entries {
		file := e.name + ".chunk"
		if err := os.WriteFile(filepath.Join(p.Dir, file), e.data, 0o644); err != nil {
			return err
		}
		m.Slots = append(m.Slots, manifestSlot{Name: e.name, File: file, Length: e.length})
	}

	out, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p.Dir, manifestName), out, 0o644)
}

// Restore loads a snapshot from the configured directory into fresh
// persistent slots and returns the name-to-slot mapping. The manifest's
// format version must satisfy FormatConstraint or the whole restore is
// rejected.
func (s *Store) Restore() (map[string]SlotIndex, error) {
	p := s.config.Persistence
	if p == nil || p.Dir == "" {
		return nil, serr.InvalidImage("store has no persistence configured")
	}

	raw, err := os.ReadFile(filepath.Join(p.Dir, manifestName))
	if err != nil {
		return nil, err
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	if err := checkFormatVersion(m.Version); err != nil {
		return nil, err
	}

	slots := make(map[string]SlotIndex, len(m.Slots))
	for _, ms := range m.Slots {
		data, err := readChunkFile(filepath.Join(p.Dir, ms.File))
		if err != nil {
			return nil, err
		}
		if len(data) < ms.Length {
			return nil, serr.InvalidImage(fmt.Sprintf("chunk file %s shorter than manifest length", ms.File))
		}

		slot, err := s.AllocatePersistentSlot(ms.Name, ms.Length)
		if err != nil {
			return nil, err
		}
		if err := s.SetLen(slot, ms.Length); err != nil {
			return nil, err
		}
		if ms.Length > 0 {
			if err := s.Write(slot, 0, data[:ms.Length]); err != nil {
				return nil, err
			}
		}
		slots[ms.Name] = slot
	}

	return slots, nil
}

// checkFormatVersion validates a manifest version against the supported
// constraint.
func checkFormatVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return serr.InvalidImage("unparseable snapshot format version: " + version)
	}
	c, err := semver.NewConstraint(FormatConstraint)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return serr.InvalidImage(fmt.Sprintf("snapshot format %s incompatible with supported %s", version, FormatConstraint))
	}
	return nil
}
