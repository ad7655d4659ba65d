package main

import (
	"bugmaschine/get621/e621"
	"bugmaschine/get621/logging"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	p := testPost(1234, func(p *e621.Post) { p.File.Ext = "webm" })
	require.Equal(t, "1234.webm", fileName(&p, 0, 3))
	require.Equal(t, "77-4_1234.webm", fileName(&p, 77, 3))
}

func TestParseS3Dest(t *testing.T) {
	cases := []struct {
		dest, bucket, prefix string
		ok                   bool
	}{
		{"s3://bucket", "bucket", "", true},
		{"s3://bucket/", "bucket", "", true},
		{"s3://bucket/a/b/", "bucket", "a/b/", true},
		{"s3://bucket/a", "bucket", "a/", true},
		{"s3://", "", "", false},
		{"./downloads", "", "", false},
	}
	for _, c := range cases {
		bucket, prefix, ok := parseS3Dest(c.dest)
		require.Equal(t, c.ok, ok, c.dest)
		require.Equal(t, c.bucket, bucket, c.dest)
		require.Equal(t, c.prefix, prefix, c.dest)
	}
}

func TestS3Location(t *testing.T) {
	s := &S3Service{bucketName: "bucket", prefix: "e621/"}
	require.Equal(t, "s3://bucket/e621/1.png", s.Location("1.png"))
}

func TestNewSinkLocal(t *testing.T) {
	dir := t.TempDir()
	s, err := newSink(context.Background(), Config{Dest: dir})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "1.png"), s.Location("1.png"))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = newSink(context.Background(), Config{Dest: file})
	var fsErr *FileSystemError
	require.True(t, errors.As(err, &fsErr))

	_, err = newSink(context.Background(), Config{Dest: filepath.Join(dir, "missing")})
	require.True(t, errors.As(err, &fsErr))
}

func TestNewSinkFallsBackToBucket(t *testing.T) {
	t.Setenv("GET621_S3_BUCKET", "mybucket")
	t.Setenv("GET621_S3_ACCESS_KEY", "key")
	t.Setenv("GET621_S3_SECRET_KEY", "secret")

	v := newViper()
	_, err := parseArgs([]string{"-s", "fluffy"}, v)
	require.NoError(t, err)
	cfg, err := loadConfig(v)
	require.NoError(t, err)

	s, err := newSink(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &S3Service{}, s)
	require.Equal(t, "s3://mybucket/1.png", s.Location("1.png"))

	// an explicit destination wins over the bucket
	dir := t.TempDir()
	cfg.Dest = dir
	s, err = newSink(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, localSink{}, s)
}

func TestNewSinkDefaultsToCurrentDirectory(t *testing.T) {
	s, err := newSink(context.Background(), Config{})
	require.NoError(t, err)
	require.Equal(t, "1.png", s.Location("1.png"))
}

func TestLocalSink(t *testing.T) {
	s := localSink{dir: t.TempDir()}

	n, err := s.Put(context.Background(), "1.png", strings.NewReader("data"))
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	data, err := os.ReadFile(s.Location("1.png"))
	require.NoError(t, err)
	require.Equal(t, "data", string(data))

	_, err = s.Put(context.Background(), "missing/2.png", strings.NewReader("data"))
	var fsErr *FileSystemError
	require.True(t, errors.As(err, &fsErr))
}

type brokenReader struct{ err error }

func (b brokenReader) Read([]byte) (int, error) { return 0, b.err }

func TestLocalSinkRemovesPartialFiles(t *testing.T) {
	s := localSink{dir: t.TempDir()}

	netErr := &e621.NetworkError{URL: "https://example.com", Err: errors.New("reset")}
	_, err := s.Put(context.Background(), "1.png", io.MultiReader(strings.NewReader("part"), brokenReader{netErr}))
	require.ErrorIs(t, err, netErr, "network errors are not storage errors")
	_, statErr := os.Stat(s.Location("1.png"))
	require.True(t, os.IsNotExist(statErr))

	_, err = s.Put(context.Background(), "2.png", brokenReader{errors.New("disk on fire")})
	var fsErr *FileSystemError
	require.True(t, errors.As(err, &fsErr))
}

// memSink keeps files in memory and refuses the names in fail.
type memSink struct {
	mu    sync.Mutex
	files map[string]string
	fail  map[string]bool
}

func (m *memSink) Location(name string) string { return "mem://" + name }

func (m *memSink) Put(_ context.Context, name string, r io.Reader) (int64, error) {
	if m.fail[name] {
		return 0, &FileSystemError{Path: m.Location(name), Err: errors.New("read-only")}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = string(data)
	return int64(len(data)), nil
}

func newTestApp(t *testing.T, b *fakeBoard, s sink) *app {
	t.Helper()
	client, err := e621.NewClient(e621.Config{BaseURL: b.srv.URL, Cooldown: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return &app{client: client, sink: s}
}

func mapped(t *testing.T, raws ...string) []e621.Post {
	t.Helper()
	var posts []e621.Post
	for _, raw := range raws {
		p, err := e621.MapPost([]byte(raw))
		require.NoError(t, err)
		posts = append(posts, p)
	}
	return posts
}

func TestTransferSkipsStorageErrors(t *testing.T) {
	b := newFakeBoard(t)
	s := &memSink{files: map[string]string{}, fail: map[string]bool{"5-1_1.png": true}}
	a := newTestApp(t, b, s)

	posts := mapped(t, b.post(1, nil), b.post(2, nil))
	require.NoError(t, a.transfer(context.Background(), posts, 5, nil))
	require.Equal(t, map[string]string{"5-2_2.png": "image of post 2"}, s.files)
}

func TestTransferAbortsOnNetworkErrors(t *testing.T) {
	b := newFakeBoard(t)
	s := &memSink{files: map[string]string{}}
	a := newTestApp(t, b, s)

	posts := mapped(t, b.post(1, nil), b.post(2, nil), b.post(3, nil))
	delete(b.files, "2.png")

	err := a.transfer(context.Background(), posts, 0, nil)
	var netErr *e621.NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Equal(t, map[string]string{"1.png": "image of post 1"}, s.files)
	require.NotContains(t, b.requests(), "/data/3.png")
}

func TestTransferTeesToStdoutAndSink(t *testing.T) {
	b := newFakeBoard(t)
	s := &memSink{files: map[string]string{}}
	a := newTestApp(t, b, s)

	var stdout bytes.Buffer
	posts := mapped(t, b.post(1, nil))
	require.NoError(t, a.transfer(context.Background(), posts, 0, &stdout))
	require.Equal(t, "image of post 1", stdout.String())
	require.Equal(t, map[string]string{"1.png": "image of post 1"}, s.files)
	require.Len(t, b.requests(), 1)
}

func TestTransferStdoutSurvivesFailingSink(t *testing.T) {
	b := newFakeBoard(t)
	s := &memSink{files: map[string]string{}, fail: map[string]bool{"1.png": true}}
	a := newTestApp(t, b, s)

	var stdout bytes.Buffer
	require.NoError(t, a.transfer(context.Background(), mapped(t, b.post(1, nil)), 0, &stdout))
	require.Equal(t, "image of post 1", stdout.String())
	require.Empty(t, s.files)
}

func TestTransferWarnsOnChecksumMismatch(t *testing.T) {
	b := newFakeBoard(t)
	var logs bytes.Buffer
	logging.SetOutput(&logs, false)
	t.Cleanup(func() { logging.SetOutput(io.Discard, false) })

	a := newTestApp(t, b, nil)
	posts := mapped(t, b.post(1, func(m map[string]any) { m["md5"] = "00000000000000000000000000000000" }))

	var stdout bytes.Buffer
	require.NoError(t, a.transfer(context.Background(), posts, 0, &stdout))
	require.Equal(t, "image of post 1", stdout.String(), "a mismatch doesn't drop the file")
	require.Contains(t, logs.String(), "md5 mismatch")
}

func TestTransferSkipsDeletedPosts(t *testing.T) {
	b := newFakeBoard(t)
	s := &memSink{files: map[string]string{}}
	a := newTestApp(t, b, s)

	posts := mapped(t,
		b.post(1, func(m map[string]any) { m["status"] = "deleted" }),
		b.post(2, func(m map[string]any) { m["file_url"] = "" }),
	)
	require.NoError(t, a.transfer(context.Background(), posts, 0, nil))
	require.Empty(t, s.files)
	require.Empty(t, b.requests())
}
