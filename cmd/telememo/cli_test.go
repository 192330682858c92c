package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/telememo/internal/config"
	"github.com/blockedby/telememo/internal/database"
	"github.com/blockedby/telememo/internal/models"
	"github.com/blockedby/telememo/internal/repository"
)

// isolate keeps the command away from the developer's config, .env and session.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("TELEMEMO_CONFIG", filepath.Join(dir, "missing.yaml"))
	for _, key := range []string{"DATABASE_PATH", "DATABASE_URL", "TG_API_ID", "TG_API_HASH", "NATS_URL", "LOG_FILE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{}
	defer a.close()
	cmd := newRootCmd(a)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, path, nil)
	require.NoError(t, err)
	defer db.Close()

	store := repository.NewStore(db.GORM)
	_, err = store.Channels.Upsert(ctx, &models.Channel{ID: 1001, Title: "Go News", Username: "gonews"})
	require.NoError(t, err)

	group := int64(77)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err = store.Messages.UpsertBatch(ctx, 1001, []models.Message{
		{ChannelID: 1001, MessageID: 1, Date: base, Text: "Go 1.25 released", MediaType: models.MediaNone},
		{ChannelID: 1001, MessageID: 2, Date: base.Add(time.Minute), Text: "album caption", MediaType: models.MediaPhoto, GroupedID: &group, Views: 10},
		{ChannelID: 1001, MessageID: 3, Date: base.Add(time.Minute), MediaType: models.MediaPhoto, GroupedID: &group, Views: 12},
	})
	require.NoError(t, err)
}

func TestCLI_SearchEmptyStore(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, "--db", filepath.Join(dir, "store.db"), "search", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, "no messages found")
}

func TestCLI_SearchAndShow(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "store.db")
	seed(t, path)

	out, err := execute(t, "--db", path, "search", "released", "--channel", "@gonews")
	require.NoError(t, err)
	assert.Contains(t, out, "Go 1.25 released")
	assert.NotContains(t, out, "album caption")

	out, err = execute(t, "--db", path, "show", "gonews", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Go News (@gonews)")
	assert.Contains(t, out, "#3")
	assert.Contains(t, out, "[2 photo]")
	assert.Contains(t, out, "views 12")
	assert.Contains(t, out, "album caption")
	assert.NotContains(t, out, "#2 ")
}

func TestCLI_InfoOffline(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "store.db")
	seed(t, path)

	out, err := execute(t, "--db", path, "info", "--offline", "t.me/gonews")
	require.NoError(t, err)
	assert.Contains(t, out, "stored")
	assert.Contains(t, out, "1..3")
}

func TestCLI_RunsEmpty(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "store.db")
	seed(t, path)

	out, err := execute(t, "--db", path, "runs", "1001")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs recorded")
}

func TestCLI_Errors(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "store.db")

	_, err := execute(t, "--db", path, "show", "@missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, exitNotFound, exitCode(err))

	_, err = execute(t, "--db", path, "show", "not a channel!")
	assert.Equal(t, exitUsage, exitCode(err))

	_, err = execute(t, "--db", path, "dump", "@gonews")
	assert.ErrorIs(t, err, config.ErrMissingCredentials)

	_, err = execute(t, "--db", path, "search", "x", "--bogus")
	assert.ErrorIs(t, err, errUsage)
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n b\t\tc ", 80))
	assert.Equal(t, "abcd…", oneLine("abcdefgh", 5))
	assert.Equal(t, "", oneLine("", 5))
}

func TestMediaSummary(t *testing.T) {
	items := []models.MediaItem{
		{MessageID: 1, MediaType: models.MediaPhoto},
		{MessageID: 2, MediaType: models.MediaVideo},
		{MessageID: 3, MediaType: models.MediaPhoto},
	}
	assert.Equal(t, "[2 photo] [1 video]", mediaSummary(items))
}
