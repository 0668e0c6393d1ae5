package handler

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/shravanasati/hearth/conn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// publicDir lays out:
//
//	root/hello.txt
//	root/data.bin
//	root/docs/index.html
//	root/empty/
//	root/escape -> outside/secret.txt
//	outside/secret.txt
func publicDir(t *testing.T) (root, outside string) {
	t.Helper()
	base := t.TempDir()
	root = filepath.Join(base, "public")
	outside = filepath.Join(base, "outside")
	for _, dir := range []string{root, outside, filepath.Join(root, "docs"), filepath.Join(root, "empty")} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	files := map[string][]byte{
		filepath.Join(root, "hello.txt"):          []byte("hello, world\n"),
		filepath.Join(root, "data.bin"):           pattern(2_000_000),
		filepath.Join(root, "docs", "index.html"): []byte("<h1>docs</h1>"),
		filepath.Join(outside, "secret.txt"):      []byte("secret"),
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(name, content, 0o644))
	}
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "escape")))
	return root, outside
}

func TestStaticFileServesFiles(t *testing.T) {
	root, _ := publicDir(t)
	l := startLoop(t)
	static, err := NewStaticFile(root, WithBufferSize(524288))
	require.NoError(t, err)

	tests := []struct {
		target      string
		body        []byte
		contentType string
	}{
		{"/hello.txt", []byte("hello, world\n"), "text/plain; charset=utf-8"},
		{"/data.bin", pattern(2_000_000), "application/octet-stream"},
		{"/docs/", []byte("<h1>docs</h1>"), "text/html; charset=utf-8"},
		{"/docs", []byte("<h1>docs</h1>"), "text/html; charset=utf-8"},
		{"/hello%2Etxt?download=1", []byte("hello, world\n"), "text/plain; charset=utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			c, client := newConn(t, l, "GET", tt.target)
			onLoop(t, l, func() { assert.True(t, static.Handle(c)) })

			res, body := readResponse(t, client, "GET")
			assert.Equal(t, 200, res.StatusCode)
			assert.Equal(t, strconv.Itoa(len(tt.body)), res.Header.Get("Content-Length"))
			assert.Equal(t, tt.contentType, res.Header.Get("Content-Type"))
			assert.True(t, bytes.Equal(tt.body, []byte(body)))
		})
	}
}

func TestStaticFileDeclines(t *testing.T) {
	root, _ := publicDir(t)
	l := startLoop(t)
	static, err := NewStaticFile(root)
	require.NoError(t, err)

	targets := []string{
		"/../../etc/passwd",
		"/%2e%2e/outside/secret.txt",
		"/docs/../../outside/secret.txt",
		"/escape",
		"/missing.txt",
		"/empty/",
		"/hello.txt%00.png",
	}
	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			c, _ := newConn(t, l, "GET", target)
			onLoop(t, l, func() {
				assert.False(t, static.Handle(c))
				assert.False(t, c.HeadSent())
				assert.False(t, c.Ended())
			})
		})
	}
}

func TestStaticFileHead(t *testing.T) {
	root, _ := publicDir(t)
	l := startLoop(t)
	opened := 0
	static, err := NewStaticFile(root, WithOpener(func(name string) (FileStream, error) {
		opened++
		return os.Open(name)
	}))
	require.NoError(t, err)

	c, client := newConn(t, l, "HEAD", "/data.bin")
	onLoop(t, l, func() { assert.True(t, static.Handle(c)) })

	res, body := readResponse(t, client, "HEAD")
	assert.Equal(t, 200, res.StatusCode)
	assert.EqualValues(t, 2_000_000, res.ContentLength)
	assert.Empty(t, body)
	assert.Equal(t, 1, opened)
}

func TestStaticFileOpenerError(t *testing.T) {
	root, _ := publicDir(t)
	l := startLoop(t)
	static, err := NewStaticFile(root, WithOpener(func(string) (FileStream, error) {
		return nil, os.ErrPermission
	}))
	require.NoError(t, err)

	c, _ := newConn(t, l, "GET", "/hello.txt")
	onLoop(t, l, func() { assert.False(t, static.Handle(c)) })
}

func TestStaticFileFallsThroughToNotFound(t *testing.T) {
	root, _ := publicDir(t)
	l := startLoop(t)
	static, err := NewStaticFile(root)
	require.NoError(t, err)
	chain := NewChain(static, NewNotFound())

	c, client := newConn(t, l, "GET", "/../../etc/passwd")
	onLoop(t, l, func() { assert.True(t, chain.Handle(c)) })
	res, body := readResponse(t, client, "GET")
	assert.Equal(t, 404, res.StatusCode)
	assert.Equal(t, "Not Found", body)
}

func TestStaticFileTransferStopsOnDisconnect(t *testing.T) {
	root, _ := publicDir(t)
	l := startLoop(t)
	stream := make(chan *trackingFile, 1)
	static, err := NewStaticFile(root, WithBufferSize(1024), WithOpener(func(name string) (FileStream, error) {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		tf := &trackingFile{File: f, closed: make(chan struct{})}
		stream <- tf
		return tf, nil
	}))
	require.NoError(t, err)

	var c *conn.Connection
	c, client := newConn(t, l, "GET", "/data.bin")
	onLoop(t, l, func() { static.Handle(c) })

	// read a little, then hang up
	buf := make([]byte, 4096)
	_, err = client.Read(buf)
	require.NoError(t, err)
	onLoop(t, l, c.Destroy)

	tf := <-stream
	select {
	case <-tf.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("file was not closed")
	}
}

type trackingFile struct {
	*os.File
	closed chan struct{}
}

func (f *trackingFile) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return f.File.Close()
}

func TestNewStaticFileValidation(t *testing.T) {
	root, _ := publicDir(t)

	_, err := NewStaticFile("")
	assert.ErrorIs(t, err, ErrInvalidPublicRoot)
	_, err = NewStaticFile(filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, ErrInvalidPublicRoot)
	_, err = NewStaticFile(filepath.Join(root, "hello.txt"))
	assert.ErrorIs(t, err, ErrInvalidPublicRoot)
	_, err = NewStaticFile(root, WithBufferSize(0))
	assert.ErrorIs(t, err, ErrInvalidBufferSize)
}

func TestStaticFileSetters(t *testing.T) {
	root, outside := publicDir(t)
	static, err := NewStaticFile(root)
	require.NoError(t, err)
	assert.Equal(t, DefaultBufferSize, static.BufferSize())

	changes := 0
	static.OnChange(func() { changes++ })

	require.NoError(t, static.SetBufferSize(4096))
	assert.Equal(t, 4096, static.BufferSize())
	assert.ErrorIs(t, static.SetBufferSize(-1), ErrInvalidBufferSize)
	assert.Equal(t, 4096, static.BufferSize())

	require.NoError(t, static.SetPublicRoot(outside))
	evaluated, err := filepath.EvalSymlinks(outside)
	require.NoError(t, err)
	assert.Equal(t, evaluated, static.PublicRoot())
	err = static.SetPublicRoot(filepath.Join(outside, "secret.txt"))
	assert.True(t, errors.Is(err, ErrInvalidPublicRoot))
	assert.Equal(t, evaluated, static.PublicRoot())

	assert.Equal(t, 2, changes)
}

func TestResolvePath(t *testing.T) {
	root, _ := publicDir(t)
	root, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"/hello.txt", filepath.Join(root, "hello.txt"), true},
		{"/", root, true},
		{"/docs/./index.html", filepath.Join(root, "docs", "index.html"), true},
		{"/docs/../hello.txt", filepath.Join(root, "hello.txt"), true},
		{"/..", "", false},
		{"/../public/hello.txt", filepath.Join(root, "hello.txt"), true},
		{"/../outside/secret.txt", "", false},
		{"/escape", "", false},
		{"/nope", "", false},
		{"/a\x00b", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := ResolvePath(root, tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
