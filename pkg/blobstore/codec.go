package blobstore

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/pkg/errors"
)

// GzipCodec is the COMPRESS_DATA codec plugin. Encryption is left to a
// deployment-specific Codec implementation; the spec only requires
// round-trip identity from whatever codec is plugged in.
type GzipCodec struct{}

// Encode gzip-compresses data.
func (GzipCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, "error compressing blob")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "error closing gzip writer")
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode.
func (GzipCodec) Decode(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "error opening gzip reader")
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "error decompressing blob")
	}
	return out, nil
}
