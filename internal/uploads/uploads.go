// Package uploads stores files attached to disaster reports in a flat
// directory and resolves the references handed out for them.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	// Prefix is the public namespace references live under.
	Prefix = "uploads/"

	timestampLayout = "20060102_150405"
	tempPrefix      = ".upload-"
)

var (
	ErrNotFound           = errors.New("upload not found")
	ErrInvalidFilename    = errors.New("invalid upload filename")
	ErrStorageUnavailable = errors.New("upload storage unavailable")
)

type StoredFile struct {
	Name      string // name inside the upload directory
	Reference string // Prefix + Name
	Size      int64
}

// Manager writes uploads under a single directory. All file access goes
// through an os.Root, so a name can never resolve outside of it.
type Manager struct {
	dir   string
	root  *os.Root
	clock clockwork.Clock
}

func NewManager(dir string, clock clockwork.Clock) (*Manager, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating upload dir: %w: %w", ErrStorageUnavailable, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("error opening upload dir: %w: %w", ErrStorageUnavailable, err)
	}

	return &Manager{
		dir:   dir,
		root:  root,
		clock: clock,
	}, nil
}

// Dir returns the directory on disk that stored files live in.
func (m *Manager) Dir() string {
	return m.dir
}

// Store writes r under "<YYYYMMDD_HHMMSS>_<filename>". Two uploads with the
// same filename in the same second end up on the same name and the later one
// wins.
func (m *Manager) Store(ctx context.Context, filename string, r io.Reader) (*StoredFile, error) {
	base, err := SanitizeFilename(filename)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := m.clock.Now().Format(timestampLayout) + "_" + base
	tmp := tempPrefix + uuid.NewString()

	f, err := m.root.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error creating upload %s: %w: %w", name, ErrStorageUnavailable, err)
	}

	n, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		m.root.Remove(tmp)
		return nil, fmt.Errorf("error writing upload %s: %w: %w", name, ErrStorageUnavailable, err)
	}

	if err := ctx.Err(); err != nil {
		m.root.Remove(tmp)
		return nil, err
	}

	if err := m.root.Rename(tmp, name); err != nil {
		m.root.Remove(tmp)
		return nil, fmt.Errorf("error moving upload %s into place: %w: %w", name, ErrStorageUnavailable, err)
	}

	return &StoredFile{
		Name:      name,
		Reference: Prefix + name,
		Size:      n,
	}, nil
}

// Open resolves a reference ("uploads/<name>" or a bare "<name>") to the
// stored file. The caller closes it.
func (m *Manager) Open(ref string) (*os.File, error) {
	name, ok := resolve(ref)
	if !ok {
		return nil, fmt.Errorf("%q: %w", ref, ErrNotFound)
	}

	f, err := m.root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%q: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("error opening upload %s: %w: %w", name, ErrStorageUnavailable, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error reading upload %s: %w: %w", name, ErrStorageUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%q: %w", ref, ErrNotFound)
	}

	return f, nil
}

func (m *Manager) Close() error {
	return m.root.Close()
}

// SanitizeFilename reduces a client supplied filename to its last path
// element. Both slash styles count as separators since browsers on Windows
// may send full paths.
func SanitizeFilename(filename string) (string, error) {
	name := filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)

	switch name {
	case "", ".", "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	return name, nil
}

func resolve(ref string) (string, bool) {
	name := strings.TrimPrefix(ref, Prefix)
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", false
	}
	return name, true
}
