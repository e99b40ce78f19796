package httpremote

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// errDecompressedTooLarge is a sentinel error for decompressed size limit violations
var errDecompressedTooLarge = errors.New("body exceeds maximum size limit")

// maxDecompressedReader wraps an io.Reader to enforce decompressed size limits
type maxDecompressedReader struct {
	reader   io.Reader
	limit    int64
	consumed int64
}

func (r *maxDecompressedReader) Read(p []byte) (int, error) {
	if r.consumed >= r.limit {
		return 0, errDecompressedTooLarge
	}

	if maxRead := r.limit - r.consumed; int64(len(p)) > maxRead {
		p = p[:maxRead]
	}

	n, err := r.reader.Read(p)
	r.consumed += int64(n)

	if r.consumed >= r.limit && err == nil {
		// one more byte means the body is over the limit
		var dummy [1]byte
		if _, peekErr := r.reader.Read(dummy[:]); peekErr == nil {
			return n, errDecompressedTooLarge
		}
	}
	return n, err
}

// bodyReader returns a reader over body that enforces the compressed limit
// and, for gzip bodies, the decompressed limit. The returned cleanup must be
// called once the body has been read.
func bodyReader(body io.Reader, encoding string, maxSize, maxDecompressed int64) (io.Reader, func(), error) {
	limited := io.LimitReader(body, maxSize+1)
	compressedLimit := &maxDecompressedReader{reader: limited, limit: maxSize}

	switch strings.TrimSpace(strings.ToLower(encoding)) {
	case "":
		return compressedLimit, func() {}, nil
	case "gzip":
		gz, err := gzip.NewReader(compressedLimit)
		if err != nil {
			return nil, func() {}, fmt.Errorf("invalid gzip data: %w", err)
		}
		return &maxDecompressedReader{reader: gz, limit: maxDecompressed}, func() { gz.Close() }, nil
	default:
		return nil, func() {}, fmt.Errorf("unsupported content encoding: %s (only gzip is supported)", encoding)
	}
}

// requestReader enforces the server limits on an incoming request body.
func requestReader(w http.ResponseWriter, r *http.Request, options *ServerOptions) (io.Reader, func(), error) {
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		return nil, func() {}, fmt.Errorf("unsupported media type: %s", contentType)
	}
	if r.ContentLength > options.MaxRequestSize {
		return nil, func() {}, &http.MaxBytesError{Limit: options.MaxRequestSize}
	}
	body := http.MaxBytesReader(w, r.Body, options.MaxRequestSize)
	return bodyReader(body, r.Header.Get("Content-Encoding"), options.MaxRequestSize, options.MaxDecompressedSize)
}

// statusFor maps a request body error to an HTTP status code.
func statusFor(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, errDecompressedTooLarge), errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case strings.Contains(err.Error(), "unsupported media type"),
		strings.Contains(err.Error(), "unsupported content encoding"):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}
