package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
	"github.com/Faultbox/surfelview/pkg/pcdb"
)

var metaKey = []byte("meta/table")

// ErrNoDataset is returned when a badger store has not been imported into.
var ErrNoDataset = errors.New("store holds no dataset")

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in memory. Useful for tests.
	InMemory bool

	// SyncWrites makes every import durable before returning.
	SyncWrites bool

	// Logger receives badger's internal messages. Nil disables them.
	Logger *zap.Logger
}

// DefaultBadgerConfig returns the configuration for a persistent store.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// InMemoryBadgerConfig returns the configuration for a throwaway store.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts zap to badger's logger interface.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

// BadgerStore keeps a dataset in an embedded key-value store: the node and
// block tables under one metadata key and every block under its own key.
type BadgerStore struct {
	tracker
	db *badger.DB
}

// OpenBadger opens or creates a store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{log: cfg.Logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func blockKey(id hierarchy.BlockID) []byte {
	return []byte(fmt.Sprintf("block/%08d", id))
}

// Import copies every block and the tables of an archive into the store,
// replacing any dataset already there.
func (s *BadgerStore) Import(archive *pcdb.Archive) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	entries := make([]pcdb.BlockEntry, len(archive.Blocks()))
	for i, e := range archive.Blocks() {
		points, err := archive.ReadBlock(i)
		if err != nil {
			return fmt.Errorf("reading block %d: %w", i, err)
		}
		raw := pcdb.EncodePoints(points)
		entries[i] = pcdb.BlockEntry{
			Length:     uint32(len(raw)),
			PointCount: e.PointCount,
			Checksum:   xxhash.Sum64(raw),
		}
		if err := wb.Set(blockKey(hierarchy.BlockID(i)), raw); err != nil {
			return fmt.Errorf("storing block %d: %w", i, err)
		}
	}

	table, err := pcdb.EncodeTable(archive.Nodes(), entries)
	if err != nil {
		return err
	}
	id := archive.DatasetID()
	meta := make([]byte, 24, 24+len(table))
	copy(meta, id[:])
	binary.LittleEndian.PutUint32(meta[16:], uint32(len(archive.Nodes())))
	binary.LittleEndian.PutUint32(meta[20:], uint32(len(entries)))
	meta = append(meta, table...)

	if err := wb.Set(metaKey, meta); err != nil {
		return fmt.Errorf("storing tables: %w", err)
	}
	return wb.Flush()
}

// readMeta returns the dataset id and tables.
func (s *BadgerStore) readMeta() (uuid.UUID, []pcdb.NodeEntry, []pcdb.BlockEntry, error) {
	var meta []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey)
		if err != nil {
			return err
		}
		meta, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return uuid.Nil, nil, nil, ErrNoDataset
	}
	if err != nil {
		return uuid.Nil, nil, nil, err
	}
	if len(meta) < 24 {
		return uuid.Nil, nil, nil, pcdb.ErrTruncated
	}

	id, err := uuid.FromBytes(meta[:16])
	if err != nil {
		return uuid.Nil, nil, nil, err
	}
	nodeCount := int(binary.LittleEndian.Uint32(meta[16:]))
	blockCount := int(binary.LittleEndian.Uint32(meta[20:]))
	nodes, blocks, err := pcdb.DecodeTable(meta[24:], nodeCount, blockCount)
	if err != nil {
		return uuid.Nil, nil, nil, err
	}
	return id, nodes, blocks, nil
}

// DatasetID returns the id of the imported dataset.
func (s *BadgerStore) DatasetID() (uuid.UUID, error) {
	id, _, _, err := s.readMeta()
	return id, err
}

// OpenTree builds the hierarchy of the imported dataset.
func (s *BadgerStore) OpenTree() (*hierarchy.Tree, error) {
	_, nodes, blocks, err := s.readMeta()
	if err != nil {
		return nil, err
	}
	return TreeFromEntries(nodes, blocks)
}

// LoadBlock reads one block and verifies it against the length and checksum
// recorded by Import.
func (s *BadgerStore) LoadBlock(b hierarchy.Block) ([]pcdb.Point, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(b.ID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %d", pcdb.ErrBlockNotFound, b.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading block %d: %w", b.ID, err)
	}

	if uint32(len(raw)) != b.Length {
		return nil, fmt.Errorf("%w: block %d is %d bytes, expected %d", pcdb.ErrTruncated, b.ID, len(raw), b.Length)
	}
	if xxhash.Sum64(raw) != b.Checksum {
		return nil, fmt.Errorf("%w: block %d", pcdb.ErrChecksum, b.ID)
	}
	points, err := pcdb.DecodePoints(raw, int(b.PointCount))
	if err != nil {
		return nil, err
	}
	s.add(b.ID)
	return points, nil
}

// Verify checks the stored checksum of every block.
func (s *BadgerStore) Verify() error {
	_, _, blocks, err := s.readMeta()
	if err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		for i, e := range blocks {
			item, err := txn.Get(blockKey(hierarchy.BlockID(i)))
			if err != nil {
				return fmt.Errorf("block %d: %w", i, err)
			}
			err = item.Value(func(val []byte) error {
				if xxhash.Sum64(val) != e.Checksum {
					return fmt.Errorf("%w: block %d", pcdb.ErrChecksum, i)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// FreeBlock forgets a loaded block.
func (s *BadgerStore) FreeBlock(b hierarchy.Block) {
	s.remove(b.ID)
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
