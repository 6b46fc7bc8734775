package middleware

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NamanArora/pay-proxy/internal/storage"
)

// HeaderRequestID carries the call's request id back to the caller.
const HeaderRequestID = "X-Request-ID"

type contextKey int

const (
	requestIDKey contextKey = iota
	callInfoKey
)

// CallInfo is filled in by the proxy handler so the capture middleware can
// record what happened to the call.
type CallInfo struct {
	mu        sync.Mutex
	errorCode string
}

// SetErrorCode records the failure kind of a call the proxy rejected.
func (c *CallInfo) SetErrorCode(code string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.errorCode = code
	c.mu.Unlock()
}

func (c *CallInfo) getErrorCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorCode
}

// CallInfoFrom returns the CallInfo attached by Capture, or nil.
func CallInfoFrom(ctx context.Context) *CallInfo {
	info, _ := ctx.Value(callInfoKey).(*CallInfo)
	return info
}

// RequestIDFrom returns the request id attached by Capture.
func RequestIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(requestIDKey).(uuid.UUID)
	return id, ok
}

// CaptureMiddleware records every proxied call as a storage.CallLog
type CaptureMiddleware struct {
	writer      *storage.AsyncLogWriter
	maxBodySize int
	routePrefix string
}

// CaptureConfig holds configuration for the capture middleware
type CaptureConfig struct {
	Writer      *storage.AsyncLogWriter
	MaxBodySize int    // Maximum body size to capture (bytes)
	RoutePrefix string // Only calls under this prefix are captured
}

// NewCaptureMiddleware creates a new capture middleware
func NewCaptureMiddleware(config CaptureConfig) *CaptureMiddleware {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 64 * 1024
	}
	if config.RoutePrefix == "" {
		config.RoutePrefix = "/proxy"
	}

	return &CaptureMiddleware{
		writer:      config.Writer,
		maxBodySize: config.MaxBodySize,
		routePrefix: "/" + strings.Trim(config.RoutePrefix, "/") + "/",
	}
}

// Capture wraps an HTTP handler to capture request/response data
func (c *CaptureMiddleware) Capture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.writer == nil || !strings.HasPrefix(r.URL.Path, c.routePrefix) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		requestID := uuid.New()

		callLog := storage.NewCallLog()
		callLog.RequestID = requestID
		callLog.Timestamp = start.UTC()
		callLog.Endpoint = r.URL.Path
		callLog.Method = r.Method
		userAgent := r.UserAgent()
		callLog.UserAgent = &userAgent
		remoteAddr := r.RemoteAddr
		callLog.RemoteAddr = &remoteAddr
		callLog.RequestHeaders = storage.SanitizeHeaders(r.Header)

		if family, provider := c.extractProvider(r.URL.Path); family != "" {
			callLog.Family = &family
			callLog.Provider = &provider
		}

		// Only the stored prefix is buffered here; the handler reads the rest
		// from the connection under its own size limit.
		var forwarded *countingBody
		if r.Body != nil && r.Body != http.NoBody {
			prefix, err := io.ReadAll(io.LimitReader(r.Body, int64(c.maxBodySize)+1))
			if err != nil {
				r.Body.Close()
				http.Error(w, "Error reading request body", http.StatusBadRequest)
				return
			}
			captured := storage.TruncateBody(string(prefix), c.maxBodySize)
			callLog.RequestBody = &captured
			forwarded = &countingBody{Reader: io.MultiReader(bytes.NewReader(prefix), r.Body), Closer: r.Body}
			r.Body = forwarded
		}

		captureWriter := &captureResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
			body:           &bytes.Buffer{},
			maxBodySize:    c.maxBodySize,
		}
		w.Header().Set(HeaderRequestID, requestID.String())

		info := &CallInfo{}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = context.WithValue(ctx, callInfoKey, info)

		next.ServeHTTP(captureWriter, r.WithContext(ctx))

		latencyMs := time.Since(start).Milliseconds()
		statusCode := captureWriter.statusCode
		callLog.StatusCode = &statusCode
		callLog.LatencyMs = &latencyMs
		callLog.ResponseHeaders = storage.SanitizeHeaders(captureWriter.Header())

		if captureWriter.body.Len() > 0 {
			responseBody := captureWriter.body.String()
			callLog.ResponseBody = &responseBody
		}
		if code := info.getErrorCode(); code != "" {
			callLog.ErrorCode = &code
		}

		var requestSize int64
		if forwarded != nil {
			requestSize = forwarded.n
		}
		callLog.Metadata = map[string]interface{}{
			"request_size":  requestSize,
			"response_size": captureWriter.written,
			"content_type":  r.Header.Get("Content-Type"),
		}

		c.writer.WriteLog(callLog)
	})
}

// countingBody counts the request bytes the handler consumed.
type countingBody struct {
	io.Reader
	io.Closer
	n int64
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.Reader.Read(p)
	b.n += int64(n)
	return n, err
}

// extractProvider determines the family and provider name from the request path
func (c *CaptureMiddleware) extractProvider(path string) (string, string) {
	segments := strings.SplitN(strings.TrimPrefix(path, c.routePrefix), "/", 3)
	switch {
	case segments[0] == "":
		return "", ""
	case segments[0] == "provider":
		if len(segments) < 2 || segments[1] == "" {
			return "", ""
		}
		return "reference", segments[1]
	default:
		return segments[0], segments[0]
	}
}

// captureResponseWriter wraps http.ResponseWriter to capture response data
type captureResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	body        *bytes.Buffer
	maxBodySize int
	written     int
}

// WriteHeader captures the status code
func (w *captureResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write captures the response body while writing to the client
func (w *captureResponseWriter) Write(data []byte) (int, error) {
	n, err := w.ResponseWriter.Write(data)
	w.written += n

	if w.body.Len()+len(data) <= w.maxBodySize {
		w.body.Write(data)
	} else if w.body.Len() < w.maxBodySize {
		remaining := w.maxBodySize - w.body.Len()
		w.body.Write(data[:remaining])
		w.body.WriteString("... [truncated]")
	}

	return n, err
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (w *captureResponseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker if the underlying ResponseWriter supports it
func (w *captureResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("hijacking not supported")
}
