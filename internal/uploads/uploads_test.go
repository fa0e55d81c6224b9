package uploads

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 9, 30, 5, 0, time.Local))
	m, err := NewManager(filepath.Join(t.TempDir(), "uploads"), clock)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, clock
}

func readAll(t *testing.T, m *Manager, ref string) []byte {
	t.Helper()
	f, err := m.Open(ref)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestStore_RoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	content := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

	stored, err := m.Store(context.Background(), "photo.jpg", bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "uploads/20260314_093005_photo.jpg", stored.Reference)
	assert.Equal(t, "20260314_093005_photo.jpg", stored.Name)
	assert.Equal(t, int64(len(content)), stored.Size)
	assert.Regexp(t, regexp.MustCompile(`^uploads/\d{8}_\d{6}_photo\.jpg$`), stored.Reference)

	assert.Equal(t, content, readAll(t, m, stored.Reference))
	// bare names resolve too
	assert.Equal(t, content, readAll(t, m, stored.Name))

	onDisk, err := os.ReadFile(filepath.Join(m.Dir(), stored.Name))
	require.NoError(t, err)
	assert.Equal(t, content, onDisk)
}

func TestStore_StripsDirectories(t *testing.T) {
	m, _ := newTestManager(t)

	tests := []struct {
		filename string
		want     string
	}{
		{"../../etc/passwd", "20260314_093005_passwd"},
		{`C:\Users\me\Pictures\flood.png`, "20260314_093005_flood.png"},
		{"/abs/path/report.pdf", "20260314_093005_report.pdf"},
		{"nested/../../../x.txt", "20260314_093005_x.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			stored, err := m.Store(context.Background(), tt.filename, strings.NewReader("data"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Name)

			_, err = os.Stat(filepath.Join(m.Dir(), tt.want))
			assert.NoError(t, err, "file should live directly in the upload dir")
		})
	}

	entries, err := os.ReadDir(filepath.Dir(m.Dir()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "nothing written next to the upload dir")
}

func TestStore_InvalidFilename(t *testing.T) {
	m, _ := newTestManager(t)

	for _, name := range []string{"", "   ", ".", "..", "dir/", `..\`, "bad\x00name.jpg", "line\nbreak.txt"} {
		_, err := m.Store(context.Background(), name, strings.NewReader("data"))
		assert.ErrorIs(t, err, ErrInvalidFilename, "filename %q", name)
	}

	entries, err := os.ReadDir(m.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_SameSecondSameNameOverwrites(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Store(ctx, "map.png", strings.NewReader("first"))
	require.NoError(t, err)
	second, err := m.Store(ctx, "map.png", strings.NewReader("second"))
	require.NoError(t, err)

	assert.Equal(t, first.Reference, second.Reference)
	assert.Equal(t, []byte("second"), readAll(t, m, first.Reference))
}

func TestStore_DistinctSecondsDistinctNames(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	first, err := m.Store(ctx, "map.png", strings.NewReader("first"))
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := m.Store(ctx, "map.png", strings.NewReader("second"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Reference, second.Reference)
	assert.Equal(t, []byte("first"), readAll(t, m, first.Reference))
	assert.Equal(t, []byte("second"), readAll(t, m, second.Reference))
}

func TestStore_ReadFailureLeavesNothingBehind(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Store(context.Background(), "broken.bin", failingReader{})
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	entries, err := os.ReadDir(m.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_CanceledContext(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Store(ctx, "late.jpg", strings.NewReader("data"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen_NotFound(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, os.Mkdir(filepath.Join(m.Dir(), "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(m.Dir()), "secret.txt"), []byte("x"), 0o600))

	for _, ref := range []string{
		"uploads/never_stored.jpg",
		"never_stored.jpg",
		"",
		"uploads/",
		"../secret.txt",
		"uploads/../secret.txt",
		`uploads\..\secret.txt`,
		"uploads/subdir",
		"uploads/.upload-tmp",
	} {
		f, err := m.Open(ref)
		if f != nil {
			f.Close()
		}
		assert.ErrorIs(t, err, ErrNotFound, "reference %q", ref)
	}
}

func TestOpen_RemovedFile(t *testing.T) {
	m, _ := newTestManager(t)

	stored, err := m.Store(context.Background(), "gone.txt", strings.NewReader("bye"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(m.Dir(), stored.Name)))

	_, err = m.Open(stored.Reference)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSanitizeFilename_KeepsExtension(t *testing.T) {
	name, err := SanitizeFilename("Evacuation Route.final.PDF")
	require.NoError(t, err)
	assert.Equal(t, "Evacuation Route.final.PDF", name)
	assert.Equal(t, ".PDF", filepath.Ext(name))
}
