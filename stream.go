package apistub

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"mime"
	"net/http"
	"sync/atomic"
)

// maxStreamLine bounds a single SSE or text line.
const maxStreamLine = 4 << 20

// StreamError is yielded when a server-sent event stream delivers an
// "error" event. Data holds the raw event payload.
type StreamError struct {
	Event string
	ID    string
	Data  []byte
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s event: %s", e.Event, e.Data)
}

// Stream performs a call lazily and yields each decoded unit of the
// response body as it arrives.
//
// The request is sent when the sequence is first ranged over. The sequence
// cannot be restarted: ranging again yields ErrStreamConsumed. Breaking out
// of the loop, or canceling the call's context, closes the response body.
//
// text/event-stream responses yield one value per event's data. Any other
// body is read as a sequence of concatenated or newline-delimited values,
// or line by line for string and []byte elements. Non-success statuses
// yield a single *ApiError.
func Stream[T any](s *Stub, d *RequestDescriptor, args ...any) iter.Seq2[T, error] {
	var consumed atomic.Bool
	return func(yield func(T, error) bool) {
		var zero T
		if !consumed.CompareAndSwap(false, true) {
			yield(zero, ErrStreamConsumed)
			return
		}
		ctx, cancel := context.WithCancel(contextArg(d, args))
		defer cancel()

		resp, err := s.send(ctx, d, args)
		if err != nil {
			yield(zero, err)
			return
		}
		defer resp.Body.Close()
		if !isSuccess(resp.StatusCode) {
			content, err := readBody(ctx, resp)
			if err != nil {
				yield(zero, err)
				return
			}
			yield(zero, newApiError(resp, content))
			return
		}

		// Unblock a pending read when the caller cancels.
		stop := context.AfterFunc(ctx, func() { resp.Body.Close() })
		defer stop()

		next := newRecordReader[T](ctx, resp, s.builder.serializer)
		for {
			v, err := next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(zero, canceled(ctx, err))
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// newRecordReader returns a function producing one value per call. Events
// frame text/event-stream bodies and lines frame string and []byte targets.
// Other bodies are read as concatenated values when the serializer can.
func newRecordReader[T any](ctx context.Context, resp *http.Response, ser ContentSerializer) func() (T, error) {
	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if sq, ok := ser.(SequenceSerializer); ok && mt != "text/event-stream" && !rawTarget[T]() {
		dec := sq.NewDecoder(resp.Body)
		return func() (T, error) {
			var v T
			err := dec.Decode(&v)
			return v, err
		}
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), maxStreamLine)
	records := lineReader(sc)
	if mt == "text/event-stream" {
		records = sseReader(sc)
	}
	return func() (T, error) {
		data, err := records()
		if err != nil {
			var zero T
			return zero, err
		}
		return decode[T](ctx, ser, bytes.NewReader(data))
	}
}

func rawTarget[T any]() bool {
	var v T
	switch any(&v).(type) {
	case *string, *[]byte:
		return true
	}
	return false
}

// lineReader yields non-blank lines with surrounding space trimmed.
func lineReader(sc *bufio.Scanner) func() ([]byte, error) {
	return func() ([]byte, error) {
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			return bytes.Clone(line), nil
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
}

// sseReader parses server-sent events. Comments (heartbeats) and events
// without data are skipped; multi-line data is joined with '\n'.
func sseReader(sc *bufio.Scanner) func() ([]byte, error) {
	return func() ([]byte, error) {
		var (
			data    bytes.Buffer
			hasData bool
			event   string
			id      string
		)
		for sc.Scan() {
			line := bytes.TrimSuffix(sc.Bytes(), []byte("\r"))
			if len(line) == 0 {
				if !hasData {
					event = ""
					continue
				}
				if event == "error" {
					return nil, &StreamError{Event: event, ID: id, Data: bytes.Clone(data.Bytes())}
				}
				return bytes.Clone(data.Bytes()), nil
			}
			if line[0] == ':' {
				continue
			}
			field, value, _ := bytes.Cut(line, []byte(":"))
			value = bytes.TrimPrefix(value, []byte(" "))
			switch string(field) {
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.Write(value)
				hasData = true
			case "event":
				event = string(value)
			case "id":
				id = string(value)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
}
