package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"commandForge/internal/apperr"
	"commandForge/internal/config"
	"commandForge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, profiles ...models.ConnectionProfile) *config.Manager {
	t.Helper()
	store := config.NewManager(filepath.Join(t.TempDir(), "connections.json"))
	require.NoError(t, store.Load())
	for _, p := range profiles {
		_, err := store.Add(p)
		require.NoError(t, err)
	}
	return store
}

func TestResolveProfile(t *testing.T) {
	store := newTestStore(t, models.ConnectionProfile{Name: "prod", Host: "10.0.0.1", User: "deploy"})

	p, err := resolveProfile(store, "prod")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", p.Host)

	p, err = resolveProfile(store, "1")
	require.NoError(t, err)
	assert.Equal(t, "prod", p.Name)

	p, err = resolveProfile(store, "root@example.com:2200")
	require.NoError(t, err)
	assert.Equal(t, "example.com", p.Host)
	assert.Equal(t, 2200, p.Port)

	_, err = resolveProfile(store, "staging")
	require.Error(t, err)
	assert.True(t, apperr.IsType(err, apperr.NotFound))
}

func TestConnectionsTable(t *testing.T) {
	out := connectionsTable([]models.ConnectionProfile{
		{Name: "prod", Host: "10.0.0.1", Port: 22, User: "deploy", Password: "x"},
		{Host: "example.com", Port: 2222, User: "root", KeyPath: "/keys/id"},
		{Host: "db", Port: 22, User: "pg"},
	})

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "10.0.0.1:22")
	assert.Contains(t, out, "example.com:2222")
	assert.Contains(t, out, "password")
	assert.Contains(t, out, "key")
	assert.Contains(t, out, "prompt")
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"connections", "list"},
		{"conn", "add"},
		{"connections", "edit"},
		{"connections", "rm"},
		{"connections", "mv"},
		{"connections", "cp"},
		{"shell"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.NotNil(t, cmd.RunE, path)
	}
}

func TestConnectionsListEmptyStore(t *testing.T) {
	t.Setenv("FORGE_BASE_DIR", t.TempDir())

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"connections", "list"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "No saved connections.\n", out.String())
}

func TestConnectionsAddMoveAndCopy(t *testing.T) {
	t.Setenv("FORGE_BASE_DIR", t.TempDir())

	run := func(args ...string) string {
		t.Helper()
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(args)
		require.NoError(t, root.Execute())
		return out.String()
	}

	assert.Equal(t, "Saved prod as #1.\n", run("connections", "add", "--name", "prod", "deploy@10.0.0.1"))
	assert.Equal(t, "Saved admin@db:5022 as #2.\n", run("connections", "add", "--host", "db", "--port", "5022", "--user", "admin"))
	assert.Equal(t, "deploy@10.0.0.1:22 is already saved.\n", run("connections", "add", "deploy@10.0.0.1:22"))

	assert.Equal(t, "admin@db:5022 is now #1.\n", run("connections", "mv", "2", "up"))
	assert.Equal(t, "Saved prod (copy) as #3.\n", run("connections", "cp", "prod"))
	assert.Equal(t, "Deleted prod (copy).\n", run("connections", "rm", "prod (copy)"))
	assert.Equal(t, "Updated #2 production.\n", run("connections", "edit", "prod", "--name", "production", "--port", "2022"))

	list := run("connections", "list")
	assert.Contains(t, list, "db:5022")
	assert.Contains(t, list, "10.0.0.1:2022")
	assert.Contains(t, list, "production")
	assert.NotContains(t, list, "(copy)")
}

func TestReadCommandsForwardsLines(t *testing.T) {
	lines := make(chan string, 2)
	require.NoError(t, readCommands(context.Background(), strings.NewReader("uptime\nls -la\n"), lines))

	assert.Equal(t, "uptime", <-lines)
	assert.Equal(t, "ls -la", <-lines)
}

func TestReadCommandsInputFailureIsNotAChannelError(t *testing.T) {
	broken := errors.New("stdin went away")
	in := io.MultiReader(strings.NewReader("pwd\n"), iotest.ErrReader(broken))
	lines := make(chan string, 1)

	err := readCommands(context.Background(), in, lines)
	require.Error(t, err)
	assert.ErrorIs(t, err, broken)
	assert.Contains(t, err.Error(), "failed to read commands")
	assert.False(t, apperr.IsType(err, apperr.ReadError))
	assert.Equal(t, "pwd", <-lines)
}

func TestReadCommandsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, readCommands(ctx, strings.NewReader("ls\n"), make(chan string)))
}
