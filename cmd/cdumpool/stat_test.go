package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d3zd3z/cdump/core/chunk"
	"github.com/d3zd3z/cdump/core/kind"
	"github.com/d3zd3z/cdump/core/oid"
	"github.com/d3zd3z/cdump/pool"
)

func TestNewStatCommand(t *testing.T) {
	cmd := newStatCommand()
	assert.NotNil(t, cmd)
	assert.Equal(t, "stat <path>", cmd.Use)
}

func TestStatCommandReportsCountsAndSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, pool.Create(dir, pool.DefaultLimit, false, func() string { return "uuid" }))

	p, err := pool.Open(dir, true)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Insert(chunk.FromData(kind.MustNew("blob"), []byte{byte(i)})))
	}
	require.NoError(t, p.AddBackup(oid.New(kind.MustNew("back"), []byte("root"))))
	require.NoError(t, p.Close())

	cmd := newStatCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "files:   1")
	assert.Contains(t, out, "chunks:  3")
	assert.Contains(t, out, "backups: 1")
}

func TestStatCommandMissingPool(t *testing.T) {
	cmd := newStatCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{t.TempDir()})
	err := cmd.Execute()
	assert.Error(t, err)
}
