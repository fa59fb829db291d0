package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetSeedFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { seedFile, seedReset = "", false })
}

func TestSeedRun_Samples(t *testing.T) {
	testEnv(t)
	resetSeedFlags(t)
	out, _ := captureUI(t)

	require.NoError(t, seedRun())
	assert.Contains(t, out.String(), "Added 6 sample bugs")

	seedReset = true
	require.NoError(t, seedRun())
	assert.Contains(t, out.String(), "Cleared 6 existing bugs")

	svc, err := getService()
	require.NoError(t, err)
	res, err := svc.List(cmdContext(), nil, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.Total)
}

func TestSeedRun_File(t *testing.T) {
	dir := testEnv(t)
	resetSeedFlags(t)
	captureUI(t)

	seedFile = filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte(`
- title: Custom seed
  description: Loaded from a file
  reporter: ops
  priority: low
`), 0o644))

	require.NoError(t, seedRun())

	svc, err := getService()
	require.NoError(t, err)
	res, err := svc.List(cmdContext(), map[string]string{"priority": "low"}, "", "")
	require.NoError(t, err)
	require.Len(t, res.Bugs, 1)
	assert.Equal(t, "Custom seed", res.Bugs[0].Title)
}

func TestSeedRun_InvalidEntry(t *testing.T) {
	dir := testEnv(t)
	resetSeedFlags(t)
	captureUI(t)

	seedFile = filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte(`
- title: Bad status
  description: Rejected
  reporter: ops
  status: wontfix
`), 0o644))

	err := seedRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid status value")
}

func TestSeedRun_MissingFile(t *testing.T) {
	testEnv(t)
	resetSeedFlags(t)
	seedFile = "/does/not/exist.yaml"

	err := seedRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read seed file")
}
