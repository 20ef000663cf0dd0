package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OFISignal/internal/domain/models"
	"OFISignal/pkg/logger"
)

func TestReadSequences(t *testing.T) {
	data, n, l, err := readSequences(strings.NewReader("# header\n1, 2, 3\n4,5,6\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, l)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, data)
}

func TestReadSequences_RaggedRows(t *testing.T) {
	_, _, _, err := readSequences(strings.NewReader("1,2,3\n4,5\n"))
	assert.Error(t, err)
}

func TestReadSequences_BadValue(t *testing.T) {
	_, _, _, err := readSequences(strings.NewReader("1,x\n"))
	assert.ErrorContains(t, err, "line 1 value 2")
}

func TestReadSequences_Empty(t *testing.T) {
	_, _, _, err := readSequences(strings.NewReader(""))
	assert.Error(t, err)
}

func TestFirstMismatch(t *testing.T) {
	a := []models.Action{models.ActionBuy, models.ActionHold}
	assert.Equal(t, -1, firstMismatch(a, a))
	assert.Equal(t, 1, firstMismatch(a, []models.Action{models.ActionBuy, models.ActionSell}))
	assert.Equal(t, 1, firstMismatch(a, a[:1]))
}

func TestRun_Match(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seqs.csv")
	require.NoError(t, os.WriteFile(path, []byte("300,0,0,-300\n-500,10,10,10\n"), 0o644))

	var out bytes.Buffer
	err := run(path, 0.15, 40, "pool", 2, logger.Nop(), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "accelerated_path=accelerated")
	assert.Contains(t, out.String(), "MATCH")
}

func TestRun_NoDeviceFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seqs.csv")
	require.NoError(t, os.WriteFile(path, []byte("300,0\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, run(path, 0.15, 40, "none", 0, logger.Nop(), &out))
	assert.Contains(t, out.String(), "accelerated_path=cpu")
}
