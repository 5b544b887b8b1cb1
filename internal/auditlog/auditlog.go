// Package auditlog records entity events of a run as JSON lines, optionally
// zstd-compressed.
package auditlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/signalsfoundry/orbital-federates/timectrl"
)

var ErrClosed = errors.New("audit log closed")

// Entry is one recorded event.
type Entry struct {
	Seq    uint64         `json:"seq"`
	RunID  string         `json:"run_id,omitempty"`
	Source string         `json:"source"`
	Event  string         `json:"event"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Subscriber is anything events can be observed on.
type Subscriber interface {
	OnAny(fn timectrl.Handler) (off func())
}

// Writer appends entries to an underlying stream. It is safe for concurrent
// use; the first write error is kept and returned by Err and Close.
type Writer struct {
	mu     sync.Mutex
	runID  string
	w      *bufio.Writer
	enc    *zstd.Encoder
	closer io.Closer
	seq    uint64
	err    error
	closed bool
}

// NewWriter writes to w, compressing with zstd when compress is set. The
// caller keeps ownership of w.
func NewWriter(w io.Writer, compress bool) (*Writer, error) {
	out := &Writer{}
	if compress {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		out.enc = enc
		w = enc
	}
	out.w = bufio.NewWriterSize(w, 64*1024)
	return out, nil
}

// Create opens path for writing, creating parent directories. Paths ending
// in .zst are compressed.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, strings.HasSuffix(path, ".zst"))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// SetRunID tags subsequent entries with id.
func (w *Writer) SetRunID(id string) {
	w.mu.Lock()
	w.runID = id
	w.mu.Unlock()
}

// Record appends ev.
func (w *Writer) Record(ev timectrl.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}
	w.seq++
	b, err := json.Marshal(Entry{Seq: w.seq, RunID: w.runID, Source: ev.Source, Event: ev.Name, Fields: ev.Fields})
	if err != nil {
		w.err = fmt.Errorf("encode audit entry %d: %w", w.seq, err)
		return w.err
	}
	if _, err := w.w.Write(b); err != nil {
		w.err = err
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		w.err = err
	}
	return w.err
}

// Attach records every event raised by subs. The returned function detaches.
func (w *Writer) Attach(subs ...Subscriber) (detach func()) {
	offs := make([]func(), 0, len(subs))
	for _, s := range subs {
		offs = append(offs, s.OnAny(func(ev timectrl.Event) { _ = w.Record(ev) }))
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// Count returns the number of entries written so far.
func (w *Writer) Count() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Err returns the first write error.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close flushes buffered entries, finishes the zstd frame and closes a file
// opened by Create.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return w.err
	}
	w.closed = true
	errs := []error{w.err}
	errs = append(errs, w.w.Flush())
	if w.enc != nil {
		errs = append(errs, w.enc.Close())
	}
	if w.closer != nil {
		errs = append(errs, w.closer.Close())
	}
	return errors.Join(errs...)
}

// Read decodes every entry from r.
func Read(r io.Reader, compressed bool) ([]Entry, error) {
	if compressed {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	var out []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("decode audit entry %d: %w", len(out)+1, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// ReadFile decodes every entry in path, decompressing .zst files.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, strings.HasSuffix(path, ".zst"))
}
