package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "state", "session.json"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{
			name: "empty history",
			rec: Record{
				SessionID:  "11111111-2222-3333-4444-555555555555",
				Profile:    "Go developer",
				JobContext: "Backend role",
				CreatedAt:  "2026-03-01T09:00:00Z",
			},
		},
		{
			name: "full history",
			rec: Record{
				SessionID:         "11111111-2222-3333-4444-555555555555",
				Profile:           "Go developer",
				JobContext:        "Backend role",
				SystemInstruction: "Answer as the candidate.",
				CreatedAt:         "2026-03-01T09:00:00Z",
				History: [][2]string{
					{"q1", "a1"},
					{"q2", "a2"},
					{"q3", "a3"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := testStore(t)
			require.NoError(t, st.Save(tt.rec))

			got, ok, err := st.Load()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.rec, got)
		})
	}
}

func TestLoadAbsent(t *testing.T) {
	st := testStore(t)
	_, ok, err := st.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "{{{{"},
		{name: "truncated", content: `{"session_id": "abc", "prof`},
		{name: "missing session id", content: `{"profile": "p", "created_at": "2026-03-01T09:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := testStore(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(st.Path()), 0o755))
			require.NoError(t, os.WriteFile(st.Path(), []byte(tt.content), 0o644))

			_, ok, err := st.Load()
			assert.ErrorIs(t, err, ErrCorrupt)
			assert.False(t, ok)
		})
	}
}

func TestLoadIgnoresUnknownFields(t *testing.T) {
	st := testStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(st.Path()), 0o755))
	content := `{"session_id": "abc", "profile": "p", "created_at": "2026-03-01T09:00:00Z", "future_field": {"nested": 1}}`
	require.NoError(t, os.WriteFile(st.Path(), []byte(content), 0o644))

	rec, ok, err := st.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", rec.SessionID)
}

func TestSaveReplacesExisting(t *testing.T) {
	st := testStore(t)
	require.NoError(t, st.Save(Record{SessionID: "first", CreatedAt: "2026-03-01T09:00:00Z"}))
	require.NoError(t, st.Save(Record{SessionID: "second", CreatedAt: "2026-03-01T10:00:00Z"}))

	rec, ok, err := st.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", rec.SessionID)
}

func TestSaveClampsHistory(t *testing.T) {
	st := testStore(t)
	rec := Record{
		SessionID: "abc",
		CreatedAt: "2026-03-01T09:00:00Z",
		History: [][2]string{
			{"q1", "a1"}, {"q2", "a2"}, {"q3", "a3"}, {"q4", "a4"}, {"q5", "a5"},
		},
	}
	require.NoError(t, st.Save(rec))

	got, ok, err := st.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.History, maxHistory)
	assert.Equal(t, [2]string{"q3", "a3"}, got.History[0])
	assert.Equal(t, [2]string{"q5", "a5"}, got.History[2])
}

func TestFailedSavePreservesPrior(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced when running as root")
	}

	dir := t.TempDir()
	st := NewFileStore(filepath.Join(dir, "session.json"))
	require.NoError(t, st.Save(Record{SessionID: "survivor", CreatedAt: "2026-03-01T09:00:00Z"}))

	// Make the directory read-only so the temp file cannot be created.
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	err := st.Save(Record{SessionID: "casualty", CreatedAt: "2026-03-01T10:00:00Z"})
	assert.ErrorIs(t, err, ErrSave)

	require.NoError(t, os.Chmod(dir, 0o755))
	rec, ok, loadErr := st.Load()
	require.NoError(t, loadErr)
	require.True(t, ok)
	assert.Equal(t, "survivor", rec.SessionID)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	st := testStore(t)
	require.NoError(t, st.Save(Record{SessionID: "abc", CreatedAt: "2026-03-01T09:00:00Z"}))

	entries, err := os.ReadDir(filepath.Dir(st.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "session.json", entries[0].Name())
}

func TestDeleteIdempotent(t *testing.T) {
	st := testStore(t)
	require.NoError(t, st.Save(Record{SessionID: "abc", CreatedAt: "2026-03-01T09:00:00Z"}))

	require.NoError(t, st.Delete())
	_, ok, err := st.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.Delete())
}
