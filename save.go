package main

import (
	"bugmaschine/get621/checksum"
	"bugmaschine/get621/dualreader"
	"bugmaschine/get621/e621"
	"bugmaschine/get621/logging"
	"context"
	"errors"
	"fmt"
	"io"
)

// fileName is <id>.<ext>, prefixed with <pool>-<position>_ for pool posts so
// the files sort in pool order.
func fileName(p *e621.Post, poolID int64, index int) string {
	if poolID > 0 {
		return fmt.Sprintf("%d-%d_%d.%s", poolID, index+1, p.ID, p.File.Ext)
	}
	return fmt.Sprintf("%d.%s", p.ID, p.File.Ext)
}

// transfer downloads the file of every post once, writing it to stdout when
// stdout is set and to the sink when there is one. Deleted posts have no file
// and are skipped. Network errors abort, storage errors only skip the file.
func (a *app) transfer(ctx context.Context, posts []e621.Post, poolID int64, stdout io.Writer) error {
	for i := range posts {
		p := &posts[i]
		if p.IsDeleted() {
			logging.Debug("Skipping deleted post #%d", p.ID)
			continue
		}
		if p.File.URL == "" {
			logging.Warn("Post #%d has no file URL, skipping", p.ID)
			continue
		}

		err := a.transferOne(ctx, p, fileName(p, poolID, i), stdout)
		var fsErr *FileSystemError
		if errors.As(err, &fsErr) {
			logging.Error("%v", fsErr)
			continue
		}
		if err != nil {
			return fmt.Errorf("downloading #%d: %w", p.ID, err)
		}
	}
	return nil
}

func (a *app) transferOne(ctx context.Context, p *e621.Post, name string, stdout io.Writer) error {
	body, err := a.client.Open(ctx, p.File.URL)
	if err != nil {
		return err
	}
	defer body.Close()

	verifier, err := checksum.NewVerifier(p.File.MD5)
	if err != nil {
		logging.Debug("Post #%d: %v", p.ID, err)
	}
	var src io.Reader = body
	if verifier != nil {
		src = io.TeeReader(body, verifier)
	}

	var n int64
	switch {
	case a.sink != nil && stdout != nil:
		n, err = a.tee(ctx, io.NopCloser(src), name, stdout)
	case a.sink != nil:
		n, err = a.sink.Put(ctx, name, src)
	default:
		n, err = io.Copy(stdout, src)
	}
	if err != nil {
		return err
	}

	if verifier != nil && !verifier.Verify() {
		logging.Warn("Post #%d: md5 mismatch, expected %s but got %s", p.ID, p.File.MD5, verifier.Sum())
	}
	if a.sink != nil {
		a.logf("Saved #%d to %s (%d bytes)", p.ID, a.sink.Location(name), n)
	}
	return nil
}

// tee streams one download to stdout and the sink at the same time.
func (a *app) tee(ctx context.Context, src io.ReadCloser, name string, stdout io.Writer) (int64, error) {
	r1, r2 := dualreader.NewDualReader(src).Readers()

	saved := make(chan error, 1)
	go func() {
		_, err := a.sink.Put(ctx, name, r1)
		// let the stdout side finish even if the sink gave up early
		r1.Close()
		saved <- err
	}()

	n, err := io.Copy(stdout, r2)
	r2.Close()
	sinkErr := <-saved
	if err != nil {
		return n, err
	}
	return n, sinkErr
}

func (a *app) logf(msg string, v ...any) {
	if a.opts.out == outVerbose {
		logging.Info(msg, v...)
	} else {
		logging.Debug(msg, v...)
	}
}
