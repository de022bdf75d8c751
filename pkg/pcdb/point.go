package pcdb

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PointSize is the encoded size of one point record in bytes.
const PointSize = 32

// Point is a single surface sample.
type Point struct {
	Position  [3]float32
	Normal    [3]float32
	Color     [4]uint8 // RGBA
	Attribute uint32   // Optional per-point identifier or flags
}

// EncodePoints serializes points as little-endian fixed-size records.
func EncodePoints(points []Point) []byte {
	buf := make([]byte, len(points)*PointSize)
	for i, p := range points {
		b := buf[i*PointSize:]
		for j := 0; j < 3; j++ {
			binary.LittleEndian.PutUint32(b[j*4:], math.Float32bits(p.Position[j]))
			binary.LittleEndian.PutUint32(b[12+j*4:], math.Float32bits(p.Normal[j]))
		}
		copy(b[24:28], p.Color[:])
		binary.LittleEndian.PutUint32(b[28:], p.Attribute)
	}
	return buf
}

// DecodePoints parses count point records from data.
func DecodePoints(data []byte, count int) ([]Point, error) {
	if len(data) != count*PointSize {
		return nil, fmt.Errorf("%w: %d bytes for %d points", ErrTruncated, len(data), count)
	}
	points := make([]Point, count)
	for i := range points {
		b := data[i*PointSize:]
		p := &points[i]
		for j := 0; j < 3; j++ {
			p.Position[j] = math.Float32frombits(binary.LittleEndian.Uint32(b[j*4:]))
			p.Normal[j] = math.Float32frombits(binary.LittleEndian.Uint32(b[12+j*4:]))
		}
		copy(p.Color[:], b[24:28])
		p.Attribute = binary.LittleEndian.Uint32(b[28:])
	}
	return points, nil
}
