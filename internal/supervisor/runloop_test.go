package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestReadLogMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	events, err := ReadLog(dir, uuid.New())
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestReadLogRoundTripsAppendedEvents(t *testing.T) {
	dir := t.TempDir()
	taskID := uuid.New()

	f, err := os.OpenFile(LogPath(dir, taskID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"prompt_sent","prompt":"do the thing"}` + "\n")
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"turn_completed"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := ReadLog(dir, taskID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, EventPromptSent, events[0].Type)
	require.Equal(t, "do the thing", events[0].Prompt)
	require.Equal(t, EventTurnCompleted, events[1].Type)
}

func TestLogPathMatchesRunWriteLocation(t *testing.T) {
	dir := t.TempDir()
	taskID := uuid.New()
	require.Equal(t, filepath.Join(dir, "task-"+taskID.String()+".jsonl"), LogPath(dir, taskID))
}
