package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLaterWins(t *testing.T) {
	t.Parallel()

	got := Merge(Vars{"A": "1", "B": "1"}, nil, Vars{"B": "2", "C": "3"})
	assert.Equal(t, Vars{"A": "1", "B": "2", "C": "3"}, got)
}

func TestFromListSkipsMalformed(t *testing.T) {
	t.Parallel()

	got := FromList([]string{"A=1", "broken", "=x", "B=with=equals"})
	assert.Equal(t, Vars{"A": "1", "B": "with=equals"}, got)
}

func TestListIsSorted(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"A=1", "B=2"}, Vars{"B": "2", "A": "1"}.List())
}

func TestOverlay(t *testing.T) {
	assert.Nil(t, Overlay(nil))

	t.Setenv("STACKCTL_OVERLAY_TEST", "os")
	got := FromList(Overlay(Vars{"STACKCTL_OVERLAY_TEST": "overlay", "EXTRA": "1"}))
	assert.Equal(t, "overlay", got["STACKCTL_OVERLAY_TEST"])
	assert.Equal(t, "1", got["EXTRA"])
}

func TestLoadEnvFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.env"), []byte("REGION=eu-west-1\nCLUSTER=one\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.env"), []byte("# comment\nCLUSTER=\"two\"\n"), 0o600))

	got, err := LoadEnvFiles(dir, []string{"a.env", "", "b.env"}, false)
	require.NoError(t, err)
	assert.Equal(t, Vars{"REGION": "eu-west-1", "CLUSTER": "two"}, got)

	_, err = LoadEnvFiles(dir, []string{"missing.env"}, false)
	assert.Error(t, err)

	got, err = LoadEnvFiles(dir, []string{"missing.env"}, true)
	require.NoError(t, err)
	assert.Empty(t, got)
}
