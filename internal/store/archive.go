package store

import (
	"fmt"

	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
	"github.com/Faultbox/surfelview/pkg/pcdb"
)

// ArchiveStore serves blocks straight from a pcdb archive file.
type ArchiveStore struct {
	tracker
	archive *pcdb.Archive
}

// OpenArchive opens the archive at path.
func OpenArchive(path string) (*ArchiveStore, error) {
	archive, err := pcdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	return &ArchiveStore{archive: archive}, nil
}

// Archive returns the underlying archive.
func (s *ArchiveStore) Archive() *pcdb.Archive {
	return s.archive
}

// OpenTree builds the hierarchy stored in the archive.
func (s *ArchiveStore) OpenTree() (*hierarchy.Tree, error) {
	return TreeFromEntries(s.archive.Nodes(), s.archive.Blocks())
}

// LoadBlock reads and verifies one block.
func (s *ArchiveStore) LoadBlock(b hierarchy.Block) ([]pcdb.Point, error) {
	points, err := s.archive.ReadBlock(int(b.ID))
	if err != nil {
		return nil, err
	}
	s.add(b.ID)
	return points, nil
}

// FreeBlock forgets a loaded block; its points are left to the garbage
// collector.
func (s *ArchiveStore) FreeBlock(b hierarchy.Block) {
	s.remove(b.ID)
}

// Close closes the archive file.
func (s *ArchiveStore) Close() error {
	return s.archive.Close()
}
