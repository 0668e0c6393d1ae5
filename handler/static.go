package handler

import (
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shravanasati/hearth/conn"
	"github.com/shravanasati/hearth/internal/metrics"
	"github.com/shravanasati/hearth/request"
	"github.com/shravanasati/hearth/response"
)

// DefaultBufferSize is the transfer chunk size used when none is configured.
const DefaultBufferSize = 512 * 1024

// FileStream is an open file ready to be transferred. *os.File implements it.
type FileStream interface {
	io.ReadCloser
	Stat() (fs.FileInfo, error)
}

// Opener opens an already validated path for reading.
type Opener func(name string) (FileStream, error)

func openFile(name string) (FileStream, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

type StaticOption func(*StaticFile)

func WithBufferSize(n int) StaticOption {
	return func(s *StaticFile) { s.bufferSize = n }
}

// WithOpener replaces os.Open. Path validation still happens against the
// real filesystem.
func WithOpener(open Opener) StaticOption {
	return func(s *StaticFile) { s.open = open }
}

func WithStaticMetrics(m *metrics.Metrics) StaticOption {
	return func(s *StaticFile) { s.metrics = m }
}

// WithIndex sets the file served for directory requests. An empty name
// disables directory indexes.
func WithIndex(name string) StaticOption {
	return func(s *StaticFile) { s.index = name }
}

// StaticFile serves regular files below a public root directory. Requests it
// cannot serve are left for the next handler.
type StaticFile struct {
	mu         sync.RWMutex
	root       string
	bufferSize int
	index      string
	open       Opener
	metrics    *metrics.Metrics
	onChange   func()
}

func NewStaticFile(publicRoot string, opts ...StaticOption) (*StaticFile, error) {
	s := &StaticFile{
		bufferSize: DefaultBufferSize,
		index:      "index.html",
		open:       openFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bufferSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBufferSize, s.bufferSize)
	}
	root, err := resolveRoot(publicRoot)
	if err != nil {
		return nil, err
	}
	s.root = root
	return s, nil
}

// resolveRoot returns the absolute, symlink free form of root.
func resolveRoot(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPublicRoot)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPublicRoot, err)
	}
	evaluated, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPublicRoot, err)
	}
	info, err := os.Stat(evaluated)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPublicRoot, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidPublicRoot, root)
	}
	return evaluated, nil
}

func (s *StaticFile) PublicRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

func (s *StaticFile) BufferSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bufferSize
}

// SetPublicRoot validates root and uses it for subsequent requests.
func (s *StaticFile) SetPublicRoot(root string) error {
	resolved, err := resolveRoot(root)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.root = resolved
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// SetBufferSize changes the chunk size of transfers started afterwards.
func (s *StaticFile) SetBufferSize(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBufferSize, n)
	}
	s.mu.Lock()
	s.bufferSize = n
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// OnChange registers fn to be called after a setter succeeds.
func (s *StaticFile) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// ResolvePath maps a request path onto the filesystem. It reports false when
// the result would lie outside root, following symlinks, or does not exist.
func ResolvePath(root, reqPath string) (string, bool) {
	if strings.IndexByte(reqPath, 0) >= 0 {
		return "", false
	}
	full := filepath.Join(root, filepath.FromSlash(reqPath))
	if !within(root, full) {
		return "", false
	}
	target, err := filepath.EvalSymlinks(full)
	if err != nil || !within(root, target) {
		return "", false
	}
	return target, true
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *StaticFile) Handle(c *conn.Connection) bool {
	s.mu.RLock()
	root, bufferSize, index := s.root, s.bufferSize, s.index
	s.mu.RUnlock()

	path, ok := ResolvePath(root, c.Path())
	if !ok {
		return false
	}

	// Only regular files are ever opened. Opening a FIFO or device would
	// block the loop until something else touched the other end.
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		if index == "" {
			return false
		}
		path, ok = ResolvePath(root, filepath.Join(c.Path(), index))
		if !ok {
			return false
		}
		if info, err = os.Stat(path); err != nil {
			return false
		}
	}
	if !info.Mode().IsRegular() {
		return false
	}

	f, info, ok := s.openRegular(path)
	if !ok {
		return false
	}

	c.SetStatusCode(response.StatusOK)
	c.SetHeader("Content-Length", strconv.FormatInt(info.Size(), 10))
	c.SetHeader("Content-Type", contentType(path))

	if c.Method() == string(request.HEAD) {
		f.Close()
		c.End()
		return true
	}

	NewFileTransfer(f, c, bufferSize, WithTransferMetrics(s.metrics))
	return true
}

// openRegular opens path and checks again that what was opened is a regular
// file, in case the path was replaced after it was inspected.
func (s *StaticFile) openRegular(path string) (FileStream, fs.FileInfo, bool) {
	f, err := s.open(path)
	if err != nil {
		return nil, nil, false
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, false
	}
	return f, info, true
}

func contentType(path string) string {
	if ctype := mime.TypeByExtension(filepath.Ext(path)); ctype != "" {
		return ctype
	}
	return "application/octet-stream"
}
