package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/entitydb"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, dir string) entitydb.EntityID {
	t.Helper()
	db, err := entitydb.Open(context.Background(), dir)
	require.NoError(t, err)
	defer db.Close()

	var id entitydb.EntityID
	require.NoError(t, db.Update(func(txn *entitydb.Txn) error {
		var err error
		id, err = db.Store().NewEntity(txn, "Issue")
		if err != nil {
			return err
		}
		_, err = db.Store().SetProperty(txn, id, "summary", "broken index")
		return err
	}))
	return id
}

func TestInfo_JSON(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir)

	out, err := runCommand(t, "info", "--dir", dir, "--json")
	require.NoError(t, err)

	var info entitydb.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.Len(t, info.Types, 1)
	assert.Equal(t, "Issue", info.Types[0].Name)
	assert.Equal(t, 1, info.Types[0].Entities)
}

func TestRepair_Full(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir)

	out, err := runCommand(t, "repair", "--dir", dir, "--full")
	require.NoError(t, err)
	assert.Contains(t, out, "repair completed")
	assert.Contains(t, out, "0 changes")
}

func TestBackupRestore(t *testing.T) {
	dir := t.TempDir()
	id := seed(t, dir)
	archive := filepath.Join(t.TempDir(), "backup.tar.zst")

	out, err := runCommand(t, "backup", "--dir", dir, "--out", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "backup written")

	target := filepath.Join(t.TempDir(), "restored")
	_, err = runCommand(t, "restore", "--from", archive, "--dir", target)
	require.NoError(t, err)

	db, err := entitydb.Open(context.Background(), target)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.View(func(txn *entitydb.Txn) error {
		assert.True(t, db.Store().Exists(txn, id))
		return nil
	}))
}

func TestRestore_RejectsNonEmptyTarget(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "file"), []byte("x"), 0o644))

	_, err := runCommand(t, "restore", "--from", "missing.tar.zst", "--dir", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not empty")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir)
	cfgPath := filepath.Join(t.TempDir(), "entitydb.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("dir: "+dir+"\ndurability: async\nblobs:\n  compression: zstd\n"), 0o644))

	out, err := runCommand(t, "info", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Issue")
}

func TestConfigFile_Invalid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "entitydb.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("durability: eventually\n"), 0o644))

	_, err := runCommand(t, "info", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "durability")
}
