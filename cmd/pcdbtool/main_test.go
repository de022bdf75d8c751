package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/surfelview/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeGrid writes a 13x13x13 lattice of colored points.
func writeGrid(t *testing.T, dir string) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("# test lattice\n")
	for x := 0; x < 13; x++ {
		for y := 0; y < 13; y++ {
			for z := 0; z < 13; z++ {
				fmt.Fprintf(&sb, "%d %d %d %d %d %d\n", x, y, z, x*19, y*19, z*19)
			}
		}
	}
	path := filepath.Join(dir, "grid.xyz")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func buildArchive(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	archive := filepath.Join(dir, "grid.pcdb")
	out, err := execute(t, "build", writeGrid(t, dir), archive, "--leaf-points", "300", "--coarse-points", "100")
	require.NoError(t, err, out)
	assert.Contains(t, out, "2197 points")
	return dir, archive
}

func TestBuildAndInfo(t *testing.T) {
	_, archive := buildArchive(t)

	out, err := execute(t, "info", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "Nodes:")
	assert.Contains(t, out, "Levels:")
	assert.Contains(t, out, "(0, 0, 0) - (12, 12, 12)")
	assert.Contains(t, out, "stored")
}

func TestNodesDepthLimit(t *testing.T) {
	_, archive := buildArchive(t)

	out, err := execute(t, "nodes", archive, "--depth", "0")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, "header and root")
	assert.True(t, strings.HasPrefix(lines[1], "0 "), lines[1])

	out, err = execute(t, "nodes", archive)
	require.NoError(t, err)
	assert.Greater(t, len(strings.Split(strings.TrimSpace(out), "\n")), 2)
}

func TestVerify(t *testing.T) {
	_, archive := buildArchive(t)

	out, err := execute(t, "verify", archive)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "OK "), out)

	data, err := os.ReadFile(archive)
	require.NoError(t, err)
	data[60] ^= 0xff
	require.NoError(t, os.WriteFile(archive, data, 0o644))

	out, err = execute(t, "verify", archive)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL block 0")
}

func TestImportAndPlanBadger(t *testing.T) {
	dir, archive := buildArchive(t)
	db := filepath.Join(dir, "grid.db")

	out, err := execute(t, "import", archive, db)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Imported")

	out, err = execute(t, "verify", "--backend", store.BackendBadger, db)
	require.NoError(t, err, out)

	out, err = execute(t, "plan", "-b", store.BackendBadger, db, "--budget", "0", "--load")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Set:")
	assert.Contains(t, out, "0 failed")
}

func TestPlanBudget(t *testing.T) {
	_, archive := buildArchive(t)

	out, err := execute(t, "plan", archive, "--budget", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Set:     0 nodes, 0 points")

	// A coarse target is met by the root sample alone.
	out, err = execute(t, "plan", archive, "--budget", "0", "--target", "0.001")
	require.NoError(t, err)
	assert.Contains(t, out, "Set:     1 nodes, 100 points")
	assert.Contains(t, out, "sufficient")
}

func TestBuildErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "build", filepath.Join(dir, "missing.xyz"), filepath.Join(dir, "out.pcdb"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.xyz")
	require.NoError(t, os.WriteFile(bad, []byte("1 2\n"), 0o644))
	_, err = execute(t, "build", bad, filepath.Join(dir, "out.pcdb"))
	assert.ErrorContains(t, err, "line 1")

	_, err = execute(t, "info")
	assert.Error(t, err, "missing argument")
}
