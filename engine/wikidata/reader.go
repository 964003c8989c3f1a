package wikidata

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/rti/askwikidata/pkg/fn"
)

// DefaultChunkBytes is how many bytes of lines are gathered before handing
// a batch to the decode pool. Large batches amortize read syscalls against
// the multi-gigabyte dump.
const DefaultChunkBytes = 1 << 30

// maxBufferBytes caps the bufio read buffer.
const maxBufferBytes = 256 << 20

// ReaderOptions tunes the dump reader.
type ReaderOptions struct {
	// ChunkBytes is the target size of one read batch. Defaults to
	// DefaultChunkBytes.
	ChunkBytes int
	// Workers sizes the JSON decode pool. Defaults to 2x the CPU count.
	Workers int
	Logger  *slog.Logger
}

// Reader streams a Wikidata JSON dump: a file whose first line is "[",
// whose last line is "]", and whose remaining lines each hold one entity
// object with a trailing comma. The file is never loaded whole.
type Reader struct {
	path string
	opts ReaderOptions
}

// NewReader creates a Reader for the dump at path.
func NewReader(path string, opts ReaderOptions) *Reader {
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = DefaultChunkBytes
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU() * 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reader{path: path, opts: opts}
}

// Line is one dump line, decoded when possible.
type Line struct {
	// Number is the 1-based line number in the file.
	Number int64
	// Raw is the line content with bracket and comma framing stripped.
	Raw string
	// Entity is the decoded record; nil when decoding failed.
	Entity *Entity
}

// ParseError reports a malformed dump line. It is recoverable: the
// consumer may skip the line and continue iterating.
type ParseError struct {
	Number int64
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("wikidata: parse line %d: %v", e.Number, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Lines yields the raw JSON lines of the dump in file order. The "[" and
// "]" framing lines are skipped and trailing commas are stripped. A non-nil
// error with a zero Line means reading failed and iteration stops.
func (r *Reader) Lines(ctx context.Context) iter.Seq2[Line, error] {
	return func(yield func(Line, error) bool) {
		f, err := os.Open(r.path)
		if err != nil {
			yield(Line{}, fmt.Errorf("wikidata: open dump: %w", err))
			return
		}
		defer f.Close()

		br := bufio.NewReaderSize(f, min(r.opts.ChunkBytes, maxBufferBytes))
		var lineNo int64
		for {
			if ctx.Err() != nil {
				yield(Line{}, ctx.Err())
				return
			}
			text, err := br.ReadString('\n')
			if err != nil && err != io.EOF {
				yield(Line{}, fmt.Errorf("wikidata: read dump: %w", err))
				return
			}
			if text != "" {
				lineNo++
				if trimmed, ok := frame(text); ok {
					if !yield(Line{Number: lineNo, Raw: trimmed}, nil) {
						return
					}
				}
			}
			if err == io.EOF {
				return
			}
		}
	}
}

// Entities yields decoded entities in file order. JSON decoding runs on a
// worker pool one batch of lines at a time; emission order is preserved.
// Malformed lines yield a *ParseError alongside the raw Line so the
// consumer can decide to skip or abort. Read failures yield a terminal
// error.
func (r *Reader) Entities(ctx context.Context) iter.Seq2[Line, error] {
	return func(yield func(Line, error) bool) {
		batch := make([]Line, 0, 1024)
		var batchBytes int

		flush := func() bool {
			if len(batch) == 0 {
				return true
			}
			decoded := fn.ParMap(batch, r.opts.Workers, decodeLine)
			batch = batch[:0]
			batchBytes = 0
			for _, d := range decoded {
				if !yield(d.line, d.err) {
					return false
				}
			}
			return true
		}

		for line, err := range r.Lines(ctx) {
			if err != nil {
				if !flush() {
					return
				}
				yield(Line{}, err)
				return
			}
			batch = append(batch, line)
			batchBytes += len(line.Raw)
			if batchBytes >= r.opts.ChunkBytes {
				if !flush() {
					return
				}
			}
		}
		flush()
	}
}

type decoded struct {
	line Line
	err  error
}

func decodeLine(l Line) decoded {
	var e Entity
	if err := json.Unmarshal([]byte(l.Raw), &e); err != nil {
		return decoded{line: l, err: &ParseError{Number: l.Number, Raw: l.Raw, Err: err}}
	}
	l.Entity = &e
	return decoded{line: l}
}

// frame strips dump line framing. It returns false for the "[" and "]"
// array bracket lines and for blank lines.
func frame(text string) (string, bool) {
	text = strings.TrimRight(text, "\n")
	if text == "[" || text == "]" || text == "" {
		return "", false
	}
	return strings.TrimSuffix(text, ","), true
}
