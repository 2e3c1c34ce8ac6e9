// Package artifact manages the paired metadata+payload products that the
// processing engine reads and writes. Every artifact is a BEAM-DIMAP pair: a
// .dim metadata file next to a .data payload directory, which must always be
// moved and deleted as a unit.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/sar-ard/internal/fsutil"
)

// Handle identifies one on-disk artifact by directory and base name. The
// metadata file and payload directory both derive from the base name, so a
// handle is a pure value that can be computed before the artifact exists.
type Handle struct {
	Dir  string
	Name string
}

// HandleFor derives the artifact handle for a burst's stage output.
// It is deterministic: the same burst id and stage tag always map to the same
// paths, which is what makes resumed runs find earlier outputs. Distinct stage
// tags never collide for the same burst because the tag is a suffix of the
// base name.
func HandleFor(dir, burstID, stageTag string) Handle {
	return Handle{Dir: dir, Name: burstID + "_" + stageTag}
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool { return h.Dir == "" && h.Name == "" }

// Prefix returns the path prefix shared by the metadata and payload,
// the form the engine expects as a target parameter.
func (h Handle) Prefix() string { return filepath.Join(h.Dir, h.Name) }

// Metadata returns the path of the .dim metadata file. Its presence is the
// signal that the artifact exists.
func (h Handle) Metadata() string { return h.Prefix() + ".dim" }

// Payload returns the path of the .data payload directory.
func (h Handle) Payload() string { return h.Prefix() + ".data" }

func (h Handle) String() string { return h.Prefix() }

// IntegrityError reports an artifact that exists but is unusable: the engine
// exited cleanly yet the pair on disk is incomplete or its rasters carry no
// usable samples.
type IntegrityError struct {
	Handle Handle
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("artifact %s: %s", e.Handle, e.Reason)
}

// Store performs all artifact lifecycle operations through a FileSystem, so
// tests can run against an in-memory tree.
type Store struct {
	FS fsutil.FileSystem
}

// NewStore returns a Store over the OS filesystem.
func NewStore() *Store {
	return &Store{FS: fsutil.OSFileSystem{}}
}

// Exists reports whether the artifact's metadata file is on disk. A stage
// whose output already exists is skipped on resumed runs.
func (s *Store) Exists(h Handle) bool {
	return s.FS.Exists(h.Metadata())
}

// MoveToFinal relocates the artifact pair into destDir. The payload moves
// first and the metadata last, so the destination never shows a metadata file
// without its payload; if the metadata move fails the payload is pulled back,
// leaving the destination empty of this artifact.
func (s *Store) MoveToFinal(h Handle, destDir string) (Handle, error) {
	if err := s.FS.MkdirAll(destDir, 0755); err != nil {
		return Handle{}, fmt.Errorf("move %s to %s: %w", h, destDir, err)
	}

	dest := Handle{Dir: destDir, Name: h.Name}

	if err := s.FS.Rename(h.Payload(), dest.Payload()); err != nil {
		return Handle{}, fmt.Errorf("move payload of %s: %w", h, err)
	}
	if err := s.FS.Rename(h.Metadata(), dest.Metadata()); err != nil {
		// Pull the payload back so destDir holds nothing of this artifact.
		if rbErr := s.FS.Rename(dest.Payload(), h.Payload()); rbErr != nil {
			_ = s.FS.RemoveAll(dest.Payload())
		}
		return Handle{}, fmt.Errorf("move metadata of %s: %w", h, err)
	}

	return dest, nil
}

// Delete removes the artifact pair. Deleting an absent artifact is not an
// error.
func (s *Store) Delete(h Handle) error {
	if err := s.FS.RemoveAll(h.Payload()); err != nil {
		return fmt.Errorf("delete payload of %s: %w", h, err)
	}
	if err := s.FS.Remove(h.Metadata()); err != nil && !os.IsNotExist(err) {
		if s.FS.Exists(h.Metadata()) {
			return fmt.Errorf("delete metadata of %s: %w", h, err)
		}
	}
	return nil
}

// Purge removes everything inside dir but keeps the directory itself.
// A missing directory counts as already purged.
func (s *Store) Purge(dir string) error {
	entries, err := s.FS.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) || !s.FS.Exists(dir) {
			return nil
		}
		return fmt.Errorf("purge %s: %w", dir, err)
	}

	for _, entry := range entries {
		if err := s.FS.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("purge %s: %w", dir, err)
		}
	}
	return nil
}
