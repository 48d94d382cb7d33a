package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrTooLarge = errors.New("file too large")

// Stored file types keyed by sniffed content type. Anything else is kept as
// opaque bytes, so nothing renderable as a page is ever written under a
// page-like extension.
var storedTypes = map[string]string{
	"image/png":                 ".png",
	"image/jpeg":                ".jpg",
	"image/gif":                 ".gif",
	"image/webp":                ".webp",
	"application/pdf":           ".pdf",
	"application/zip":           ".zip",
	"audio/mpeg":                ".mp3",
	"audio/wave":                ".wav",
	"video/mp4":                 ".mp4",
	"video/webm":                ".webm",
	"text/plain; charset=utf-8": ".txt",
	"application/octet-stream":  ".bin",
}

var extTypes = func() map[string]string {
	m := make(map[string]string, len(storedTypes))
	for ct, ext := range storedTypes {
		m[ext] = ct
	}
	return m
}()

// Stored describes one saved attachment
type Stored struct {
	Name        string
	ContentType string
}

func (s Stored) IsImage() bool { return strings.HasPrefix(s.ContentType, "image/") }

// Uploads keeps chat attachments on local disk under a single directory.
// Stored names are server generated, so user input never reaches a path.
type Uploads struct {
	dir     string
	maxSize int64
}

func NewUploads(dir string, maxSize int64) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	return &Uploads{dir: dir, maxSize: maxSize}, nil
}

func (u *Uploads) Dir() string { return u.dir }

func (u *Uploads) MaxSize() int64 { return u.maxSize }

// Save sniffs r, then copies it to a new file named <uuid><ext of sniffed type>.
// Partial files are removed when the copy fails or exceeds the size limit.
func (u *Uploads) Save(r io.Reader) (Stored, error) {
	br := bufio.NewReaderSize(r, 512)
	head, _ := br.Peek(512)
	st := Stored{ContentType: sniff(head)}
	st.Name = uuid.NewString() + storedTypes[st.ContentType]
	path := filepath.Join(u.dir, st.Name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Stored{}, fmt.Errorf("create upload: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(br, u.maxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > u.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return Stored{}, err
	}
	return st, nil
}

// Open returns a stored file and the content type it was saved as.
// Names that Save could not have produced are reported as ErrNotFound.
func (u *Uploads) Open(name string) (*os.File, string, error) {
	ct, ok := extTypes[filepath.Ext(name)]
	if !ok || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, "", ErrNotFound
	}
	f, err := os.Open(filepath.Join(u.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("open upload: %w", err)
	}
	return f, ct, nil
}

// Remove deletes a stored file; a missing file is not an error
func (u *Uploads) Remove(name string) error {
	if name != filepath.Base(name) {
		return ErrNotFound
	}
	err := os.Remove(filepath.Join(u.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

// sniff maps content onto one of the stored types
func sniff(head []byte) string {
	ct := http.DetectContentType(head)
	if _, ok := storedTypes[ct]; ok {
		return ct
	}
	return "application/octet-stream"
}
