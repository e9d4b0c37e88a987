// Package frame implements the wire framing used by the hpx protocol.
//
// Every message on the wire is a gzip stream followed by the five ASCII
// bytes "<EOF>". There is no length prefix: the delimiter is the only
// framing mechanism and it is shared by both directions.
package frame

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// CompressionLevel is the gzip level applied to every outbound message.
const CompressionLevel = 5

// Delimiter terminates every frame.
const Delimiter = "<EOF>"

var delimiter = []byte(Delimiter)

// ErrIncomplete is returned by Decode when the accumulator does not yet
// contain a delimiter. The caller should read more bytes and retry.
var ErrIncomplete = errors.New("frame: incomplete message")

// CorruptError is returned when a complete frame does not decompress.
type CorruptError struct {
	Size int
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("frame: corrupt payload (%d bytes): %v", e.Size, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Compress gzips payload at CompressionLevel.
func Compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, CompressionLevel)
	if err != nil {
		return nil, errors.Wrap(err, "gzip writer")
	}
	if _, err = w.Write(payload); err != nil {
		return nil, errors.Wrap(err, "gzip write")
	}
	if err = w.Close(); err != nil {
		return nil, errors.Wrap(err, "gzip close")
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &CorruptError{Size: len(data), Err: err}
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, &CorruptError{Size: len(data), Err: err}
	}
	return out, nil
}

// Encode compresses payload and appends the delimiter.
func Encode(payload []byte) ([]byte, error) {
	compressed, err := Compress(payload)
	if err != nil {
		return nil, err
	}
	return append(compressed, delimiter...), nil
}

// Split cuts acc at the first delimiter. msg excludes the delimiter and
// rest holds everything after it. ok is false when no delimiter is present.
func Split(acc []byte) (msg, rest []byte, ok bool) {
	i := bytes.Index(acc, delimiter)
	if i < 0 {
		return nil, acc, false
	}
	return acc[:i], acc[i+len(delimiter):], true
}

// Decode extracts and decompresses the first complete frame in acc.
// It returns ErrIncomplete, with rest equal to acc, when more bytes are
// needed, and a *CorruptError when the frame does not decompress.
func Decode(acc []byte) (payload, rest []byte, err error) {
	msg, rest, ok := Split(acc)
	if !ok {
		return nil, acc, ErrIncomplete
	}
	payload, err = Decompress(msg)
	if err != nil {
		return nil, rest, err
	}
	return payload, rest, nil
}
