// Package gziputil compresses small blobs with pooled gzip writers.
package gziputil

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ErrTooLarge is returned when a blob inflates past the caller's limit.
var ErrTooLarge = errors.New("gziputil: decompressed data exceeds limit")

var writerPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// IsGzip reports whether data starts with the gzip magic bytes.
func IsGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// Compress gzip-compresses data.
func Compress(data []byte) ([]byte, error) {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	gw := writerPool.Get().(*gzip.Writer)
	gw.Reset(buf)
	defer func() {
		gw.Reset(nil)
		writerPool.Put(gw)
	}()

	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Decompress inflates data, failing with ErrTooLarge past limit bytes.
func Decompress(data []byte, limit int64) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	if _, err := io.Copy(buf, io.LimitReader(gr, limit+1)); err != nil {
		return nil, err
	}
	if int64(buf.Len()) > limit {
		return nil, ErrTooLarge
	}
	return bytes.Clone(buf.Bytes()), nil
}
