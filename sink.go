package main

import (
	"bugmaschine/get621/e621"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileSystemError is a failure to store one file. It skips that file, the
// rest of the batch is still saved.
type FileSystemError struct {
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("couldn't write %s: %v", e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }

// sink stores downloaded files under a name.
type sink interface {
	Put(ctx context.Context, name string, r io.Reader) (int64, error)
	Location(name string) string
}

// newSink picks where saved files go: an s3:// destination, else the
// configured bucket when no destination is set, else a local directory.
func newSink(ctx context.Context, cfg Config) (sink, error) {
	if bucket, prefix, ok := parseS3Dest(cfg.Dest); ok {
		return newS3Sink(ctx, cfg.S3, bucket, prefix)
	}
	if cfg.Dest == "" && cfg.S3.Bucket != "" {
		return newS3Sink(ctx, cfg.S3, cfg.S3.Bucket, "")
	}

	dir := cfg.Dest
	if dir == "" {
		dir = "."
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &FileSystemError{Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &FileSystemError{Path: dir, Err: errors.New("not a directory")}
	}
	return localSink{dir: dir}, nil
}

// parseS3Dest splits s3://bucket/some/prefix.
func parseS3Dest(dest string) (bucket, prefix string, ok bool) {
	rest, ok := strings.CutPrefix(dest, "s3://")
	if !ok {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return bucket, prefix, true
}

type localSink struct {
	dir string
}

func (s localSink) Location(name string) string {
	return filepath.Join(s.dir, name)
}

func (s localSink) Put(ctx context.Context, name string, r io.Reader) (int64, error) {
	path := s.Location(name)
	f, err := os.Create(path)
	if err != nil {
		return 0, &FileSystemError{Path: path, Err: err}
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// no half written files
		os.Remove(path)
		var netErr *e621.NetworkError
		if errors.As(err, &netErr) {
			return n, err
		}
		return n, &FileSystemError{Path: path, Err: err}
	}
	return n, nil
}
