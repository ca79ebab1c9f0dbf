package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_HistoryCapturesComponentLogs(t *testing.T) {
	var console bytes.Buffer
	l, err := New(&Config{Level: LevelDebug, MaxHistory: 10, Console: true, ConsoleOut: &console})
	require.NoError(t, err)
	defer l.Close()

	log := l.Component("orchestrator")
	log.Info().Str("emotion", "curious").Int("scheduled", 2).Msg("Staged transition")
	log.Error().Err(errors.New("boom")).Msg("Output channel panicked")

	entries := l.History(2)
	require.Len(t, entries, 2)

	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "orchestrator", entries[0].Component)
	assert.Equal(t, "Staged transition", entries[0].Message)
	assert.Equal(t, "emotion=curious, scheduled=2", entries[0].Data)

	assert.Equal(t, "error", entries[1].Level)
	assert.Contains(t, entries[1].Data, "error=boom")

	assert.Contains(t, console.String(), "Staged transition")
}

func TestHistory_IsBounded(t *testing.T) {
	l, err := New(&Config{Level: LevelInfo, MaxHistory: 3})
	require.NoError(t, err)

	log := l.Component("test")
	for i := 0; i < 10; i++ {
		log.Info().Int("i", i).Msg("tick")
	}

	entries := l.History(0)
	require.Len(t, entries, 3)
	assert.Equal(t, "i=9", entries[2].Data)
	assert.Len(t, l.History(100), 3)
}

func TestLevelFiltering(t *testing.T) {
	l, err := New(&Config{Level: LevelWarn})
	require.NoError(t, err)

	log := l.Component("test")
	log.Debug().Msg("hidden")
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	entries := l.History(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0].Message)
}

func TestNew_WritesDailyFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := New(&Config{LogDir: dir, Level: LevelInfo})
	require.NoError(t, err)

	testLog := l.Component("test")
	testLog.Info().Msg("persisted")
	require.NoError(t, l.Close())

	assert.Equal(t, dir, filepath.Dir(l.LogPath()))
	data, err := os.ReadFile(l.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"persisted"`)
}

func TestSetOnLog(t *testing.T) {
	l, err := New(&Config{Level: LevelInfo})
	require.NoError(t, err)

	got := make(chan LogEntry, 1)
	l.SetOnLog(func(e LogEntry) { got <- e })
	hubLog := l.Component("hub")
	hubLog.Info().Msg("Client connected")

	select {
	case e := <-got:
		assert.Equal(t, "hub", e.Component)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}
