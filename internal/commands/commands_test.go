package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aixgo-dev/nutrilog/internal/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := NewRootCmd("1.2.3")

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "cleanup", "chat"})
	assert.Equal(t, "1.2.3", root.Version)
}

func TestCleanupCommandWithMemoryStore(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("DIET_COLLECTION", "diet")
	t.Setenv("EXERCISE_COLLECTION", "exercise")

	var out bytes.Buffer
	root := NewRootCmd("test")
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"cleanup", "--days", "7"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "(7 days)")
	assert.Contains(t, out.String(), "[飲食] diet")
	assert.Contains(t, out.String(), "Archived 0 records")
}

func TestCleanupCommandRejectsBadStore(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_BACKEND", "sqlite")

	root := NewRootCmd("test")
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"cleanup"})

	assert.ErrorContains(t, root.ExecuteContext(context.Background()), "unknown store backend")
}

func TestConsoleMessengerEvents(t *testing.T) {
	var out bytes.Buffer
	c := newConsoleMessenger(&out, "小明")

	ev, quit := c.event("分析熱量")
	require.False(t, quit)
	require.NotNil(t, ev)
	assert.Equal(t, bot.EventText, ev.Kind)
	assert.Equal(t, "分析熱量", ev.Text)
	assert.Equal(t, chatUserID, ev.UserID)

	ev, _ = c.event("/image ./lunch.jpg")
	require.NotNil(t, ev)
	assert.Equal(t, bot.EventImage, ev.Kind)
	assert.Equal(t, "./lunch.jpg", ev.MessageID)

	ev, _ = c.event("/image")
	assert.Nil(t, ev)
	assert.Contains(t, out.String(), "usage: /image <path>")

	_, quit = c.event("/quit")
	assert.True(t, quit)
}

func TestConsoleMessengerIO(t *testing.T) {
	var out bytes.Buffer
	c := newConsoleMessenger(&out, "小明")
	ctx := context.Background()

	require.NoError(t, c.Reply(ctx, "t", "嗨"))
	require.NoError(t, c.Push(ctx, chatUserID, "收到"))
	assert.Equal(t, "🐱 嗨\n🐱 收到\n", out.String())

	name, err := c.DisplayName(ctx, chatUserID)
	require.NoError(t, err)
	assert.Equal(t, "小明", name)

	path := filepath.Join(t.TempDir(), "meal.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o600))
	data, err := c.Content(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	_, err = c.Content(ctx, filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}
