package tailer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"sync/atomic"
	"time"

	"github.com/atikulmunna/loomwatch/internal/model"
	"github.com/atikulmunna/loomwatch/internal/watcher"
	"github.com/rs/zerolog"
)

const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultWaitInterval = time.Second
	DefaultMaxLineBytes = 1 << 20
)

// Tailer follows one log file across truncation, rotation and deletion and
// emits every complete line as a RawLine.
//
// It polls instead of relying on file notifications, because those are not
// delivered reliably for files bind-mounted into containers. Position is
// never restored by seeking: the offset is the number of bytes consumed
// from the current handle and is only compared against a fresh stat.
type Tailer struct {
	pattern    string
	out        chan model.RawLine
	poll       time.Duration
	wait       time.Duration
	maxLine    int
	startAtEnd bool
	wake       <-chan struct{}
	log        zerolog.Logger

	opened  bool
	reopens atomic.Int64
}

// Option configures a Tailer.
type Option func(*Tailer)

// WithPollInterval sets how long to sleep at end of file before checking again.
func WithPollInterval(d time.Duration) Option { return func(t *Tailer) { t.poll = d } }

// WithWaitInterval sets the retry interval while the file is missing or unreadable.
func WithWaitInterval(d time.Duration) Option { return func(t *Tailer) { t.wait = d } }

// WithMaxLineBytes bounds the partial-line buffer; longer lines are dropped.
func WithMaxLineBytes(n int) Option { return func(t *Tailer) { t.maxLine = n } }

// WithStartAtEnd skips the content present when the file is first opened.
// Files opened after a rotation are always read from the start.
func WithStartAtEnd(v bool) Option { return func(t *Tailer) { t.startAtEnd = v } }

// WithWake lets an external signal (see watcher.Watcher) cut a poll sleep short.
func WithWake(ch <-chan struct{}) Option { return func(t *Tailer) { t.wake = ch } }

func WithLogger(l zerolog.Logger) Option { return func(t *Tailer) { t.log = l } }

// New creates a Tailer for path, which may also be a doublestar glob.
func New(path string, opts ...Option) *Tailer {
	t := &Tailer{
		pattern: path,
		out:     make(chan model.RawLine, 512),
		poll:    DefaultPollInterval,
		wait:    DefaultWaitInterval,
		maxLine: DefaultMaxLineBytes,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Lines returns the channel where raw log lines are sent. It is closed when
// Start returns.
func (t *Tailer) Lines() <-chan model.RawLine {
	return t.out
}

// Reopens returns how many times the file was reopened after rotation,
// truncation or disappearance.
func (t *Tailer) Reopens() int64 {
	return t.reopens.Load()
}

// Start follows the file until the context is cancelled. I/O errors are
// logged and retried; none of them end the loop.
func (t *Tailer) Start(ctx context.Context) {
	defer close(t.out)

	for {
		c, ok := t.open(ctx)
		if !ok {
			return
		}
		t.follow(ctx, c)
		c.close()
		if ctx.Err() != nil {
			return
		}
		t.reopens.Add(1)
	}
}

// cursor is the read state for one open handle.
type cursor struct {
	path     string
	file     *os.File
	info     os.FileInfo // identity captured at open
	r        *bufio.Reader
	offset   int64
	partial  []byte
	skipping bool // inside a line that exceeded maxLine
}

func (c *cursor) close() {
	c.file.Close()
}

// open waits for the file to exist and opens it.
func (t *Tailer) open(ctx context.Context) (*cursor, bool) {
	for {
		c, err := t.tryOpen()
		if err == nil {
			t.log.Info().Str("path", c.path).Int64("offset", c.offset).Msg("log_file_opened")
			return c, true
		}
		if errors.Is(err, fs.ErrNotExist) {
			t.log.Info().Str("path", t.pattern).Msg("waiting_for_log_file")
		} else {
			t.log.Warn().Err(err).Str("path", t.pattern).Msg("log_file_open_failed")
		}
		if !sleep(ctx, t.wait, nil) {
			return nil, false
		}
	}
}

func (t *Tailer) tryOpen() (*cursor, error) {
	path, err := watcher.Resolve(t.pattern)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	c := &cursor{path: path, file: f, info: info, r: bufio.NewReaderSize(f, 64*1024)}

	if t.startAtEnd && !t.opened {
		if pos, err := f.Seek(0, io.SeekEnd); err == nil {
			c.offset = pos
		} else {
			t.log.Warn().Err(err).Str("path", path).Msg("seek_to_end_failed_reading_from_start")
		}
	}
	t.opened = true
	return c, nil
}

type fileState int

const (
	stateSame fileState = iota
	stateRotated
	stateTruncated
	stateGone
)

// follow reads c until the file behind the path changes or disappears.
func (t *Tailer) follow(ctx context.Context, c *cursor) {
	for {
		if err := t.drain(ctx, c); err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warn().Err(err).Str("path", c.path).Msg("log_read_failed")
			sleep(ctx, t.wait, nil)
			return
		}

		switch t.check(c) {
		case stateRotated:
			t.log.Info().Str("path", c.path).Msg("log_file_rotated_reopening")
			t.finish(ctx, c)
			return
		case stateGone:
			t.log.Info().Str("path", c.path).Msg("log_file_disappeared")
			t.finish(ctx, c)
			return
		case stateTruncated:
			t.log.Info().Str("path", c.path).Int64("offset", c.offset).Msg("log_file_truncated_reopening")
			t.flushPartial(ctx, c)
			return
		}

		if !sleep(ctx, t.poll, t.wake) {
			return
		}
	}
}

// check compares the open handle against what the path points to now.
func (t *Tailer) check(c *cursor) fileState {
	path, err := watcher.Resolve(t.pattern)
	if err != nil {
		return stateGone
	}
	info, err := os.Stat(path)
	if err != nil {
		return stateGone
	}
	if path != c.path || !os.SameFile(c.info, info) {
		return stateRotated
	}
	if info.Size() < c.offset {
		return stateTruncated
	}
	return stateSame
}

// finish reads whatever was appended to the old file before it was replaced
// and emits a final unterminated line, if any.
func (t *Tailer) finish(ctx context.Context, c *cursor) {
	if err := t.drain(ctx, c); err != nil && ctx.Err() == nil {
		t.log.Warn().Err(err).Str("path", c.path).Msg("log_read_failed")
	}
	t.flushPartial(ctx, c)
}

func (t *Tailer) flushPartial(ctx context.Context, c *cursor) {
	if len(c.partial) > 0 && !c.skipping {
		t.emit(ctx, c.path, c.partial)
	}
	c.partial = c.partial[:0]
	c.skipping = false
}

// drain emits every complete line up to end of file. A trailing partial
// line stays buffered in the cursor until its newline arrives.
func (t *Tailer) drain(ctx context.Context, c *cursor) error {
	for {
		chunk, err := c.r.ReadSlice('\n')
		c.offset += int64(len(chunk))

		if len(chunk) > 0 {
			complete := chunk[len(chunk)-1] == '\n'
			if !c.skipping {
				c.partial = append(c.partial, chunk...)
				if len(c.partial) > t.maxLine {
					t.log.Warn().Str("path", c.path).Int("max_bytes", t.maxLine).Msg("log_line_too_long_dropped")
					c.partial = c.partial[:0]
					c.skipping = true
				}
			}
			if complete {
				if !c.skipping && !t.emit(ctx, c.path, c.partial) {
					return ctx.Err()
				}
				c.partial = c.partial[:0]
				c.skipping = false
			}
		}

		switch {
		case err == nil, errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
	}
}

func (t *Tailer) emit(ctx context.Context, path string, raw []byte) bool {
	line := string(bytes.TrimRight(raw, "\r\n"))
	select {
	case t.out <- model.RawLine{Text: line, Source: path}:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleep waits for d, an optional wake-up, or cancellation. It reports
// whether the caller should keep going.
func sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-wake:
		return true
	}
}
