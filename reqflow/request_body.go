/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"bytes"
	"fmt"
	"io"
)

// requestBody makes an io.Reader body readable by every attempt of the dispatch.
//
// Strategy (in order of preference):
// 1) If the body implements io.ReadSeeker, remember the current offset and Seek back before each attempt.
// 2) Otherwise, read the entire body into memory once and create a new reader for each attempt.
//
// The buffering approach is not suitable for very large uploads, callers should pass a seekable body for them.
type requestBody struct {
	seeker io.ReadSeeker
	offset int64
	data   []byte
}

// newRequestBody returns nil for bodies that are not readers, they are encoded anew by every attempt.
func newRequestBody(body interface{}) (*requestBody, error) {
	r, ok := body.(io.Reader)
	if !ok {
		return nil, nil
	}
	if seeker, ok := r.(io.ReadSeeker); ok {
		offset, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("seek request body before doing first request: %w", err)
		}
		return &requestBody{seeker: seeker, offset: offset}, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read all request body before doing first request: %w", err)
	}
	return &requestBody{data: data}, nil
}

// reader returns the body rewound to its initial state.
func (b *requestBody) reader() (io.Reader, error) {
	if b.seeker == nil {
		return bytes.NewReader(b.data), nil
	}
	if _, err := b.seeker.Seek(b.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek request body (offset=%d) for attempt: %w", b.offset, err)
	}
	// http.Client closes bodies implementing io.Closer, the next attempt still needs it.
	if _, ok := b.seeker.(io.Closer); ok {
		return io.NopCloser(b.seeker), nil
	}
	return b.seeker, nil
}
