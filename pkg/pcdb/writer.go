package pcdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"runtime"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Dataset is the in-memory form of an archive, produced by the builder and
// consumed by Write. Node block indices refer to Blocks.
type Dataset struct {
	ID     uuid.UUID
	Nodes  []NodeEntry
	Blocks [][]Point
}

// Validate checks that every parent, child and block index is in range and
// that each block is owned by exactly one node.
func (d *Dataset) Validate() error {
	if len(d.Nodes) == 0 {
		return fmt.Errorf("dataset has no nodes")
	}
	owner := make([]int, len(d.Blocks))
	for i := range owner {
		owner[i] = -1
	}
	for i, n := range d.Nodes {
		if n.Parent < -1 || int(n.Parent) >= len(d.Nodes) {
			return fmt.Errorf("node %d: parent %d out of range", i, n.Parent)
		}
		if (i == 0) != (n.Parent == -1) {
			return fmt.Errorf("node %d: only node 0 may be the root", i)
		}
		for _, c := range n.Children {
			if c <= 0 || int(c) >= len(d.Nodes) || d.Nodes[c].Parent != int32(i) {
				return fmt.Errorf("node %d: invalid child %d", i, c)
			}
		}
		for _, b := range n.Blocks {
			if b < 0 || int(b) >= len(d.Blocks) {
				return fmt.Errorf("node %d: block %d out of range", i, b)
			}
			if owner[b] != -1 {
				return fmt.Errorf("block %d owned by nodes %d and %d", b, owner[b], i)
			}
			owner[b] = i
		}
	}
	return nil
}

// Write stores the dataset as an archive at path. Block payloads are
// compressed concurrently and written in block order.
func Write(path string, ds *Dataset) error {
	if err := ds.Validate(); err != nil {
		return fmt.Errorf("invalid dataset: %w", err)
	}
	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}

	payloads, err := compressBlocks(ds.Blocks)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)

	// Header is rewritten once the table offset is known.
	if _, err := w.Write(make([]byte, headerSize)); err != nil {
		return err
	}

	entries := make([]BlockEntry, len(payloads))
	offset := uint64(headerSize)
	for i, payload := range payloads {
		entries[i] = BlockEntry{
			Offset:     offset,
			Length:     uint32(len(payload)),
			PointCount: uint32(len(ds.Blocks[i])),
			Checksum:   xxhash.Sum64(payload),
			Flags:      FlagCompressed,
		}
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("writing block %d: %w", i, err)
		}
		offset += uint64(len(payload))
	}

	table, err := EncodeTable(ds.Nodes, entries)
	if err != nil {
		return err
	}
	compressed, err := deflate(table)
	if err != nil {
		return fmt.Errorf("compressing table: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	header := Header{
		Version:      Version,
		DatasetID:    ds.ID,
		NodeCount:    uint32(len(ds.Nodes)),
		BlockCount:   uint32(len(ds.Blocks)),
		TableOffset:  offset,
		TableSize:    uint32(len(compressed)),
		TableRawSize: uint32(len(table)),
	}
	copy(header.Magic[:], archiveMagic)

	if _, err := file.Seek(0, 0); err != nil {
		return err
	}
	if err := binary.Write(file, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	return file.Sync()
}

func compressBlocks(blocks [][]Point) ([][]byte, error) {
	payloads := make([][]byte, len(blocks))

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range blocks {
		g.Go(func() error {
			payload, err := deflate(EncodePoints(blocks[i]))
			if err != nil {
				return fmt.Errorf("compressing block %d: %w", i, err)
			}
			payloads[i] = payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}
