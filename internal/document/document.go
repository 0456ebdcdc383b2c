// Package document implements the read-only documents opened by the niiview
// host: a resource identity and the bytes read from it exactly once.
package document

import (
	"context"
	"fmt"

	"github.com/niivue/niiview/internal/fsext"
)

// IOError is returned when a resource can't be read.
type IOError struct {
	URI URI
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("couldn't read %s: %s", e.URI, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Document is an opened resource. Its payload is never modified after Open.
type Document struct {
	uri  URI
	data []byte
}

// Open reads the resource at uri from fs.
func Open(ctx context.Context, fs fsext.Fs, uri URI) (*Document, error) {
	data, err := Read(ctx, fs, uri)
	if err != nil {
		return nil, err
	}
	return &Document{uri: uri, data: data}, nil
}

// Read returns the bytes of the resource at uri.
func Read(ctx context.Context, fs fsext.Fs, uri URI) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &IOError{URI: uri, Err: err}
	}
	if dir, err := fsext.IsDir(fs, uri.Path()); err == nil && dir {
		return nil, &IOError{URI: uri, Err: fmt.Errorf("%s is a directory", uri.Path())}
	}
	data, err := fsext.ReadFile(fs, uri.Path())
	if err != nil {
		return nil, &IOError{URI: uri, Err: err}
	}
	return data, nil
}

// URI returns the identity of the document.
func (d *Document) URI() URI {
	return d.uri
}

// Name returns the file name of the document.
func (d *Document) Name() string {
	return d.uri.Name()
}

// Bytes returns the payload. Callers must not modify it.
func (d *Document) Bytes() []byte {
	return d.data
}

// Len returns the payload size in bytes.
func (d *Document) Len() int {
	return len(d.data)
}
