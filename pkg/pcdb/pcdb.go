// Package pcdb reads and writes point-cloud block archives.
//
// An archive holds a static multi-resolution tree over a point dataset. The
// file starts with a fixed header, followed by the zlib-compressed point
// payload of every block, followed by a zlib-compressed table describing the
// blocks (byte range, point count, checksum) and the nodes (bounds,
// complexity, resolution, children, owned blocks).
package pcdb

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const (
	archiveMagic = "PCDB"

	// Version is the archive format version written by this package.
	Version = 1

	headerSize = 48

	blockEntrySize = 28
	nodeFixedSize  = 48

	// maxInflateRatio bounds how far zlib can expand its input.
	maxInflateRatio = 1032
)

// Archive errors.
var (
	ErrInvalidMagic       = errors.New("invalid archive magic: expected 'PCDB'")
	ErrUnsupportedVersion = errors.New("unsupported archive version")
	ErrTruncated          = errors.New("truncated archive data")
	ErrChecksum           = errors.New("block checksum mismatch")
	ErrBlockNotFound      = errors.New("block not found")
)

// Block flags.
const (
	FlagCompressed uint32 = 1 << 0
)

// Header contains archive header information.
type Header struct {
	Magic        [4]byte
	Version      uint32
	DatasetID    [16]byte
	NodeCount    uint32
	BlockCount   uint32
	TableOffset  uint64
	TableSize    uint32 // Compressed size of the table
	TableRawSize uint32 // Uncompressed size of the table
}

// BlockEntry locates one block payload in the archive.
type BlockEntry struct {
	Offset     uint64
	Length     uint32
	PointCount uint32
	Checksum   uint64
	Flags      uint32
}

// NodeEntry describes one node of the stored tree. Parent is -1 for the root.
type NodeEntry struct {
	Parent     int32
	Min        [3]float32
	Max        [3]float32
	Complexity float64
	Resolution float32
	Children   []int32
	Blocks     []int32
}

// Archive represents an opened point-cloud archive.
type Archive struct {
	file   *os.File
	size   int64
	header Header
	nodes  []NodeEntry
	blocks []BlockEntry
}

// Open opens an archive for reading.
func Open(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	archive := &Archive{file: file, size: info.Size()}

	if err := archive.readHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading header: %w", err)
	}

	if err := archive.readTable(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading table: %w", err)
	}

	return archive, nil
}

// Close closes the archive.
func (a *Archive) Close() error {
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// Header returns the archive header.
func (a *Archive) Header() Header {
	return a.header
}

// DatasetID returns the identifier assigned when the archive was written.
func (a *Archive) DatasetID() uuid.UUID {
	return uuid.UUID(a.header.DatasetID)
}

// Nodes returns the node table. Index in the slice is the node id.
func (a *Archive) Nodes() []NodeEntry {
	return a.nodes
}

// Blocks returns the block table. Index in the slice is the block id.
func (a *Archive) Blocks() []BlockEntry {
	return a.blocks
}

// ReadBlock reads and decodes the points of one block.
func (a *Archive) ReadBlock(id int) ([]Point, error) {
	if id < 0 || id >= len(a.blocks) {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, id)
	}
	entry := a.blocks[id]
	if entry.Offset > uint64(a.size) || uint64(entry.Length) > uint64(a.size)-entry.Offset {
		return nil, fmt.Errorf("%w: block %d past end of file", ErrTruncated, id)
	}
	raw := uint64(entry.PointCount) * PointSize
	if entry.Flags&FlagCompressed != 0 && raw > uint64(entry.Length)*maxInflateRatio {
		return nil, fmt.Errorf("%w: block %d point count", ErrTruncated, id)
	}

	payload := make([]byte, entry.Length)
	if _, err := a.file.ReadAt(payload, int64(entry.Offset)); err != nil {
		return nil, fmt.Errorf("%w: block %d: %v", ErrTruncated, id, err)
	}

	if xxhash.Sum64(payload) != entry.Checksum {
		return nil, fmt.Errorf("%w: block %d", ErrChecksum, id)
	}

	data := payload
	if entry.Flags&FlagCompressed != 0 {
		var err error
		data, err = inflate(payload, int(raw))
		if err != nil {
			return nil, fmt.Errorf("decompressing block %d: %w", id, err)
		}
	}

	return DecodePoints(data, int(entry.PointCount))
}

func (a *Archive) readHeader() error {
	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	if err := binary.Read(a.file, binary.LittleEndian, &a.header); err != nil {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	if string(a.header.Magic[:]) != archiveMagic {
		return ErrInvalidMagic
	}

	if a.header.Version != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, a.header.Version)
	}

	return nil
}

func (a *Archive) readTable() error {
	h := a.header
	if h.TableOffset > uint64(a.size) || uint64(h.TableSize) > uint64(a.size)-h.TableOffset {
		return fmt.Errorf("%w: table past end of file", ErrTruncated)
	}
	if uint64(h.TableRawSize) > uint64(h.TableSize)*maxInflateRatio {
		return fmt.Errorf("%w: table raw size %d", ErrTruncated, h.TableRawSize)
	}

	compressed := make([]byte, a.header.TableSize)
	if _, err := a.file.ReadAt(compressed, int64(a.header.TableOffset)); err != nil {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	table, err := inflate(compressed, int(a.header.TableRawSize))
	if err != nil {
		return err
	}

	a.nodes, a.blocks, err = DecodeTable(table, int(a.header.NodeCount), int(a.header.BlockCount))
	return err
}

// EncodeTable serializes the block and node tables, blocks first.
func EncodeTable(nodes []NodeEntry, blocks []BlockEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, blocks); err != nil {
		return nil, err
	}
	for i, n := range nodes {
		if err := writeNodeEntry(&buf, n); err != nil {
			return nil, fmt.Errorf("encoding node %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeTable parses a table written by EncodeTable.
func DecodeTable(table []byte, nodeCount, blockCount int) ([]NodeEntry, []BlockEntry, error) {
	r := bytes.NewReader(table)

	// Reject counts the table cannot hold before allocating for them.
	if int64(blockCount)*blockEntrySize+int64(nodeCount)*nodeFixedSize > int64(r.Len()) {
		return nil, nil, ErrTruncated
	}
	blocks := make([]BlockEntry, blockCount)
	if err := binary.Read(r, binary.LittleEndian, blocks); err != nil {
		return nil, nil, fmt.Errorf("%w: block table", ErrTruncated)
	}

	nodes := make([]NodeEntry, 0, nodeCount)
	for i := 0; i < nodeCount; i++ {
		node, err := readNodeEntry(r)
		if err != nil {
			return nil, nil, fmt.Errorf("node entry %d: %w", i, err)
		}
		nodes = append(nodes, node)
	}

	return nodes, blocks, nil
}

// nodeFixed is the fixed-size prefix of a node entry in the table.
type nodeFixed struct {
	Parent     int32
	Min        [3]float32
	Max        [3]float32
	Complexity float64
	Resolution float32
	ChildCount uint32
	BlockCount uint32
}

func readNodeEntry(r *bytes.Reader) (NodeEntry, error) {
	var fixed nodeFixed
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return NodeEntry{}, ErrTruncated
	}

	// Each index takes 4 bytes; reject counts the table cannot hold.
	if (int64(fixed.ChildCount)+int64(fixed.BlockCount))*4 > int64(r.Len()) {
		return NodeEntry{}, ErrTruncated
	}

	node := NodeEntry{
		Parent:     fixed.Parent,
		Min:        fixed.Min,
		Max:        fixed.Max,
		Complexity: fixed.Complexity,
		Resolution: fixed.Resolution,
		Children:   make([]int32, fixed.ChildCount),
		Blocks:     make([]int32, fixed.BlockCount),
	}
	if err := binary.Read(r, binary.LittleEndian, node.Children); err != nil {
		return NodeEntry{}, ErrTruncated
	}
	if err := binary.Read(r, binary.LittleEndian, node.Blocks); err != nil {
		return NodeEntry{}, ErrTruncated
	}
	return node, nil
}

func writeNodeEntry(w io.Writer, n NodeEntry) error {
	fixed := nodeFixed{
		Parent:     n.Parent,
		Min:        n.Min,
		Max:        n.Max,
		Complexity: n.Complexity,
		Resolution: n.Resolution,
		ChildCount: uint32(len(n.Children)),
		BlockCount: uint32(len(n.Blocks)),
	}
	if err := binary.Write(w, binary.LittleEndian, fixed); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, n.Children); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, n.Blocks)
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte, size int) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	result := make([]byte, size)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return result, nil
}
