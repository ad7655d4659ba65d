package dualreader

import (
	"bugmaschine/get621/logging"
	"errors"
	"io"
)

// DualReader feeds one source to two consumers. Each consumer reads at its own
// pace but the source only advances as fast as the slower one, so both must be
// drained or closed.
type DualReader struct {
	r1 io.ReadCloser
	r2 io.ReadCloser
}

func NewDualReader(source io.ReadCloser) *DualReader {
	pr1, pw1 := io.Pipe()
	pr2, pw2 := io.Pipe()

	go func() {
		defer source.Close()

		_, err := io.Copy(&fanout{writers: []*io.PipeWriter{pw1, pw2}}, source)
		if err != nil {
			logging.Debug("[DualReader] error copying: %v", err)
		}
		// a nil error closes the pipes with io.EOF
		pw1.CloseWithError(err)
		pw2.CloseWithError(err)
	}()

	return &DualReader{
		r1: pr1,
		r2: pr2,
	}
}

func (d *DualReader) Readers() (io.ReadCloser, io.ReadCloser) {
	return d.r1, d.r2
}

// fanout stops writing to a pipe once its reader went away, so closing one
// consumer doesn't starve the other. It fails once every reader is gone.
type fanout struct {
	writers []*io.PipeWriter
}

func (f *fanout) Write(p []byte) (int, error) {
	live := f.writers[:0]
	for _, w := range f.writers {
		if _, err := w.Write(p); err != nil {
			if !errors.Is(err, io.ErrClosedPipe) {
				return 0, err
			}
			continue
		}
		live = append(live, w)
	}
	f.writers = live
	if len(live) == 0 {
		return 0, io.ErrClosedPipe
	}
	return len(p), nil
}
