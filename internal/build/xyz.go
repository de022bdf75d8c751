package build

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Faultbox/surfelview/pkg/pcdb"
)

// ReadXYZ parses whitespace-separated ASCII points, one per line:
//
//	x y z [r g b [nx ny nz]]
//
// Colors are 0-255. Blank lines and lines starting with '#' are skipped.
func ReadXYZ(r io.Reader) ([]pcdb.Point, error) {
	var points []pcdb.Point

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		if n := len(fields); n != 3 && n != 6 && n != 9 {
			return nil, fmt.Errorf("line %d: expected 3, 6 or 9 fields, got %d", line, n)
		}

		p := pcdb.Point{Color: [4]uint8{255, 255, 255, 255}}
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(fields[i], 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: position: %w", line, err)
			}
			p.Position[i] = float32(v)
		}
		if len(fields) >= 6 {
			for i := 0; i < 3; i++ {
				v, err := strconv.ParseUint(fields[3+i], 10, 8)
				if err != nil {
					return nil, fmt.Errorf("line %d: color: %w", line, err)
				}
				p.Color[i] = uint8(v)
			}
		}
		if len(fields) == 9 {
			for i := 0; i < 3; i++ {
				v, err := strconv.ParseFloat(fields[6+i], 32)
				if err != nil {
					return nil, fmt.Errorf("line %d: normal: %w", line, err)
				}
				p.Normal[i] = float32(v)
			}
		}
		p.Attribute = uint32(len(points))
		points = append(points, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading points: %w", err)
	}
	return points, nil
}
