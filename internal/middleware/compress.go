package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

const defaultCompressMinLength = 1024

// CompressConfig tunes the brotli middleware.
type CompressConfig struct {
	Quality   int
	MinLength int
	// SkipPrefixes lists request paths that are never compressed.
	SkipPrefixes []string
}

// Compress brotli-encodes responses of at least MinLength bytes. Event
// streams and WebSocket upgrades pass through untouched.
func Compress(cfg CompressConfig) gin.HandlerFunc {
	if cfg.Quality < 0 || cfg.Quality > brotli.BestCompression {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = defaultCompressMinLength
	}

	pool := &sync.Pool{
		New: func() any { return brotli.NewWriterLevel(nil, cfg.Quality) },
	}

	return func(c *gin.Context) {
		if isStreaming(c) || hasPrefix(c.Request.URL.Path, cfg.SkipPrefixes) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		cw := &compressWriter{ResponseWriter: c.Writer, minLength: cfg.MinLength, pool: pool}
		c.Writer = cw
		defer func() {
			if err := cw.finish(); err != nil {
				_ = c.Error(err)
			}
		}()

		c.Next()
	}
}

// compressWriter holds back the body until it knows whether the response is
// large enough to be worth encoding.
type compressWriter struct {
	gin.ResponseWriter
	minLength int
	pool      *sync.Pool

	buf     []byte
	br      *brotli.Writer
	decided bool
}

func (w *compressWriter) Write(data []byte) (int, error) {
	if w.decided {
		if w.br != nil {
			return w.br.Write(data)
		}
		return w.ResponseWriter.Write(data)
	}

	w.buf = append(w.buf, data...)
	if len(w.buf) < w.minLength {
		return len(data), nil
	}
	if err := w.start(true); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (w *compressWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Flush commits to the plain encoding if nothing was decided yet, since a
// handler that flushes wants bytes on the wire now.
func (w *compressWriter) Flush() {
	if !w.decided {
		_ = w.start(false)
	}
	if w.br != nil {
		_ = w.br.Flush()
	}
	w.ResponseWriter.Flush()
}

func (w *compressWriter) start(compress bool) error {
	w.decided = true
	if compress {
		h := w.ResponseWriter.Header()
		h.Set("Content-Encoding", "br")
		h.Del("Content-Length")

		w.br = w.pool.Get().(*brotli.Writer)
		w.br.Reset(w.ResponseWriter)
	}

	pending := w.buf
	w.buf = nil
	if len(pending) == 0 {
		return nil
	}
	if w.br != nil {
		_, err := w.br.Write(pending)
		return err
	}
	_, err := w.ResponseWriter.Write(pending)
	return err
}

func (w *compressWriter) finish() error {
	if !w.decided {
		return w.start(false)
	}
	if w.br == nil {
		return nil
	}
	err := w.br.Close()
	w.br.Reset(nil)
	w.pool.Put(w.br)
	w.br = nil
	return err
}

func isStreaming(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}
