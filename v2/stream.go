package graphql

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const (
	contentTypeJSON      = "application/json"
	contentTypeMultipart = "multipart/mixed"

	partHeaderSeparator = "\r\n\r\n"
	terminatingSentinel = "--"
	defaultBoundary     = "-"
)

var boundaryRegex = regexp.MustCompile(`(?i)boundary=(?:"([^"]+)"|([^;]+))`)

// ChunkStreamer is implemented by response bodies that deliver their content
// as a push sequence of byte chunks instead of a pull reader. The stream
// consumer prefers this shape when available.
type ChunkStreamer interface {
	Chunks() <-chan []byte
}

// ChunkedBody adapts a channel of byte chunks into a response body. It
// satisfies both body shapes: io.ReadCloser for pull consumers and
// ChunkStreamer for push consumers.
type ChunkedBody struct {
	ch   <-chan []byte
	rest []byte
	done chan struct{}
	once sync.Once
}

func NewChunkedBody(ch <-chan []byte) *ChunkedBody {
	return &ChunkedBody{ch: ch, done: make(chan struct{})}
}

func (b *ChunkedBody) Chunks() <-chan []byte { return b.ch }

func (b *ChunkedBody) Read(p []byte) (int, error) {
	if len(b.rest) == 0 {
		select {
		case chunk, ok := <-b.ch:
			if !ok {
				return 0, io.EOF
			}
			b.rest = chunk
		case <-b.done:
			return 0, io.EOF
		}
	}
	n := copy(p, b.rest)
	b.rest = b.rest[n:]
	return n, nil
}

func (b *ChunkedBody) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

// chunkSource is the uniform interior iterator: an async sequence of decoded
// text chunks, whatever the body shape underneath.
type chunkSource interface {
	next(ctx context.Context) (string, error)
	cancel()
}

func newChunkSource(body io.ReadCloser) chunkSource {
	if streamer, ok := body.(ChunkStreamer); ok {
		return &channelSource{body: body, chunks: streamer.Chunks()}
	}
	return &readerSource{body: body, buf: make([]byte, 4096)}
}

type readerSource struct {
	body io.ReadCloser
	buf  []byte
}

func (s *readerSource) next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := s.body.Read(s.buf)
		if n > 0 {
			return string(s.buf[:n]), nil
		}
		if err != nil {
			return "", err
		}
	}
}

func (s *readerSource) cancel() {
	s.body.Close()
}

type channelSource struct {
	body   io.Closer
	chunks <-chan []byte
}

func (s *channelSource) next(ctx context.Context) (string, error) {
	select {
	case chunk, ok := <-s.chunks:
		if !ok {
			return "", io.EOF
		}
		return string(chunk), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *channelSource) cancel() {
	s.body.Close()
}

// multipartReader frames a multipart/mixed byte stream into batches of JSON
// part bodies. A part is only released once its trailing boundary has been
// seen; whatever is left in the buffer at EOF is dropped.
type multipartReader struct {
	source   chunkSource
	boundary string
	buffer   string
	finished bool
}

func newMultipartReader(contentType string, body io.ReadCloser) *multipartReader {
	return &multipartReader{
		source:   newChunkSource(body),
		boundary: boundaryFromContentType(contentType),
	}
}

func boundaryFromContentType(contentType string) string {
	token := defaultBoundary
	if m := boundaryRegex.FindStringSubmatch(contentType); m != nil {
		if m[1] != "" {
			token = m[1]
		} else {
			token = m[2]
		}
	}
	return terminatingSentinel + token
}

// nextParts blocks until at least one complete part is available and returns
// the batch, or io.EOF once the stream has ended.
func (r *multipartReader) nextParts(ctx context.Context) ([]string, error) {
	for !r.finished {
		chunk, err := r.source.next(ctx)
		if err != nil {
			return nil, err
		}
		r.buffer += chunk
		if parts := r.drain(); len(parts) > 0 {
			return parts, nil
		}
	}
	return nil, io.EOF
}

// drain cuts the buffer at the last boundary occurrence, extracts every
// complete part body before it and keeps the remainder buffered. A trimmed
// remainder of "--" is the terminating sentinel.
func (r *multipartReader) drain() []string {
	lastIdx := strings.LastIndex(r.buffer, r.boundary)
	if lastIdx < 0 {
		return nil
	}
	head := r.buffer[:lastIdx]
	r.buffer = r.buffer[lastIdx+len(r.boundary):]
	if strings.TrimSpace(r.buffer) == terminatingSentinel {
		r.buffer = ""
		r.finished = true
	}

	var parts []string
	for _, segment := range strings.Split(head, r.boundary) {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		idx := strings.Index(segment, partHeaderSeparator)
		if idx < 0 {
			continue
		}
		if body := strings.TrimSpace(segment[idx+len(partHeaderSeparator):]); body != "" {
			parts = append(parts, body)
		}
	}
	return parts
}

func (r *multipartReader) cancel() {
	r.source.cancel()
}

// streamMultipart consumes a multipart/mixed response body, folds each batch
// of payloads into the accumulator and emits a snapshot per batch. Internal
// failures emit one final snapshot carrying the partial result.
func (c *Client) streamMultipart(ctx context.Context, out chan<- StreamResponse, res *http.Response) {
	reader := newMultipartReader(res.Header.Get("Content-Type"), res.Body)
	defer reader.cancel()

	acc := newIncrementalResponse()
	for {
		parts, err := reader.nextParts(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			emit(ctx, out, acc.errorSnapshot(res.StatusCode, formatErrorMessage(fmt.Sprintf(streamPayloadMessage, err)), nil))
			return
		}

		if err := acc.ingest(parts); err != nil {
			emit(ctx, out, acc.errorSnapshot(res.StatusCode, formatErrorMessage(fmt.Sprintf(multipartParseMessage, err)), nil))
			return
		}
		if len(acc.errors) > 0 {
			emit(ctx, out, acc.errorSnapshot(res.StatusCode, formatErrorMessage(graphQLErrorsMessage), acc.errors))
			return
		}
		if acc.empty() {
			emit(ctx, out, acc.errorSnapshot(res.StatusCode, formatErrorMessage(noDataMessage), nil))
			return
		}
		if !emit(ctx, out, acc.snapshot()) {
			return
		}
	}

	if acc.hasNext {
		emit(ctx, out, acc.errorSnapshot(res.StatusCode, formatErrorMessage(streamTerminatedMessage), nil))
	}
}
