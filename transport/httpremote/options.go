package httpremote

import "time"

// ServerOptions configures the authority handler.
type ServerOptions struct {
	// MaxRequestSize is the maximum allowed size of incoming request bodies
	// in bytes (compressed). If 0, defaults to 10MB.
	MaxRequestSize int64

	// MaxDecompressedSize is the maximum allowed size of decompressed
	// request bodies in bytes. If 0, defaults to 20MB.
	MaxDecompressedSize int64

	// CompressionEnabled gzips responses larger than CompressionThreshold
	// for clients that accept it.
	CompressionEnabled bool

	// CompressionThreshold is the minimum response size that is compressed.
	CompressionThreshold int64

	// RequestTimeout bounds the processing of a single request.
	RequestTimeout time.Duration
}

// DefaultServerOptions returns the default server options.
func DefaultServerOptions() *ServerOptions {
	return &ServerOptions{
		MaxRequestSize:       10 * 1024 * 1024, // 10MB
		MaxDecompressedSize:  20 * 1024 * 1024, // 20MB
		CompressionEnabled:   true,
		CompressionThreshold: 1024,
		RequestTimeout:       30 * time.Second,
	}
}

// ClientOptions configures the client.
type ClientOptions struct {
	// CompressionEnabled gzips request bodies larger than GzipMinBytes and
	// accepts gzip responses.
	CompressionEnabled bool

	// GzipMinBytes is the minimum request body size that is compressed.
	GzipMinBytes int

	// MaxResponseSize is the maximum allowed size of response bodies in
	// bytes (compressed). If 0, defaults to 10MB.
	MaxResponseSize int64

	// MaxDecompressedResponseSize is the maximum allowed size of decompressed
	// response bodies in bytes. If 0, defaults to 20MB.
	MaxDecompressedResponseSize int64

	// RequestTimeout is the timeout of the underlying http.Client.
	RequestTimeout time.Duration
}

// DefaultClientOptions returns the default client options.
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		CompressionEnabled:          true,
		GzipMinBytes:                1024,
		MaxResponseSize:             10 * 1024 * 1024,
		MaxDecompressedResponseSize: 20 * 1024 * 1024,
		RequestTimeout:              30 * time.Second,
	}
}

// ServerOption is a function that configures a ServerOptions struct
type ServerOption func(*ServerOptions)

// WithMaxRequestSize sets the maximum allowed size of incoming request bodies
func WithMaxRequestSize(size int64) ServerOption {
	return func(opts *ServerOptions) {
		opts.MaxRequestSize = size
	}
}

// WithMaxDecompressedSize sets the maximum allowed size of decompressed request bodies
func WithMaxDecompressedSize(size int64) ServerOption {
	return func(opts *ServerOptions) {
		opts.MaxDecompressedSize = size
	}
}

// WithCompression enables or disables response compression
func WithCompression(enabled bool) ServerOption {
	return func(opts *ServerOptions) {
		opts.CompressionEnabled = enabled
	}
}

// WithRequestTimeout sets the maximum duration for request processing
func WithRequestTimeout(timeout time.Duration) ServerOption {
	return func(opts *ServerOptions) {
		opts.RequestTimeout = timeout
	}
}

// ClientOption is a function that configures a ClientOptions struct
type ClientOption func(*ClientOptions)

// WithClientCompression enables or disables request/response compression
func WithClientCompression(enabled bool) ClientOption {
	return func(opts *ClientOptions) {
		opts.CompressionEnabled = enabled
	}
}

// WithMaxResponseSize sets the maximum allowed size of response bodies
func WithMaxResponseSize(size int64) ClientOption {
	return func(opts *ClientOptions) {
		opts.MaxResponseSize = size
	}
}

// WithClientTimeout sets the timeout for all requests
func WithClientTimeout(timeout time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.RequestTimeout = timeout
	}
}

func applyServerOptions(opts ...ServerOption) *ServerOptions {
	options := DefaultServerOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func applyClientOptions(opts ...ClientOption) *ClientOptions {
	options := DefaultClientOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}
