package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const dataPrefix = "data: "

// readChunkSize is the size of a single body read while decoding.
const readChunkSize = 4 * 1024

// DeltaFunc receives each content fragment as it is decoded.
type DeltaFunc func(delta string)

// StreamDecoder turns the raw bytes of a `text/event-stream` chat response
// into accumulated text. Bytes may be written in chunks of any size: partial
// lines are held back until their newline arrives, so the result does not
// depend on how the body was split.
type StreamDecoder struct {
	pending []byte
	text    strings.Builder
	err     error
	onDelta DeltaFunc
}

// NewStreamDecoder returns a decoder. onDelta may be nil.
func NewStreamDecoder(onDelta DeltaFunc) *StreamDecoder {
	return &StreamDecoder{onDelta: onDelta}
}

// Write feeds a chunk of the response body. It returns a *StreamError once
// the stream has reported an error; later writes keep returning it.
func (d *StreamDecoder) Write(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.pending = append(d.pending, p...)
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}
		line := d.pending[:i]
		d.pending = d.pending[i+1:]
		d.processLine(line)
		if d.err != nil {
			return len(p), d.err
		}
	}
	return len(p), nil
}

// Close processes a trailing line that was not terminated by a newline.
func (d *StreamDecoder) Close() error {
	if d.err == nil && len(d.pending) > 0 {
		line := d.pending
		d.pending = nil
		d.processLine(line)
	}
	return d.err
}

// Text returns everything accumulated so far.
func (d *StreamDecoder) Text() string {
	return d.text.String()
}

func (d *StreamDecoder) processLine(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return
	}

	var ev streamEvent
	if err := json.Unmarshal(line[len(dataPrefix):], &ev); err != nil {
		// Malformed events are dropped.
		return
	}
	if ev.Error != nil {
		d.err = &StreamError{Message: *ev.Error, Partial: d.text.String()}
		return
	}
	if ev.Content != nil && *ev.Content != "" {
		d.text.WriteString(*ev.Content)
		if d.onDelta != nil {
			d.onDelta(*ev.Content)
		}
	}
}

// Decode reads r until EOF and returns the accumulated text. Cancelling ctx
// stops the read loop between chunks.
func Decode(ctx context.Context, r io.Reader, onDelta DeltaFunc) (string, error) {
	if r == nil {
		return "", ErrNoBody
	}

	dec := NewStreamDecoder(onDelta)
	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := dec.Write(buf[:n]); err != nil {
				return "", err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return "", readErr
		}
	}
	if err := dec.Close(); err != nil {
		return "", err
	}
	return dec.Text(), nil
}
