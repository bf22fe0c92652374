// Package middleware holds HTTP response middleware shared by the API server.
package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig selects which responses are gzipped.
type CompressionConfig struct {
	MinSize      int      // smallest body worth compressing, in bytes
	Level        int      // gzip level, 1-9
	ContentTypes []string // compressible media types
}

func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:      1024,
		Level:        6,
		ContentTypes: []string{"application/json", "text/plain"},
	}
}

// Compression gzips buffered responses for clients that accept it.
type Compression struct {
	config CompressionConfig
	pool   sync.Pool

	requests   atomic.Int64
	compressed atomic.Int64
	bytesIn    atomic.Int64
	bytesOut   atomic.Int64
}

func NewCompression(cfg CompressionConfig) *Compression {
	if cfg.Level < gzip.BestSpeed || cfg.Level > gzip.BestCompression {
		cfg.Level = gzip.DefaultCompression
	}
	cm := &Compression{config: cfg}
	cm.pool.New = func() any {
		gz, _ := gzip.NewWriterLevel(io.Discard, cfg.Level)
		return gz
	}
	return cm
}

// Handler buffers the response body and writes it gzipped once the chain is done.
// Responses that already carry a Content-Encoding pass through untouched.
func (cm *Compression) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		w := &bufferedWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()
		c.Writer = w.ResponseWriter
		cm.flush(w)
	}
}

func (cm *Compression) flush(w *bufferedWriter) {
	body := w.body.Bytes()
	if len(body) == 0 {
		return
	}
	cm.requests.Add(1)
	cm.bytesIn.Add(int64(len(body)))

	h := w.Header()
	if len(body) < cm.config.MinSize || h.Get("Content-Encoding") != "" ||
		!cm.compressible(h.Get("Content-Type")) || w.ResponseWriter.Written() {
		cm.bytesOut.Add(int64(len(body)))
		_, _ = w.ResponseWriter.Write(body)
		return
	}

	var out bytes.Buffer
	gz := cm.pool.Get().(*gzip.Writer)
	gz.Reset(&out)
	_, err := gz.Write(body)
	if err == nil {
		err = gz.Close()
	}
	cm.pool.Put(gz)
	if err != nil {
		cm.bytesOut.Add(int64(len(body)))
		_, _ = w.ResponseWriter.Write(body)
		return
	}

	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")
	h.Del("Content-Length")
	cm.compressed.Add(1)
	cm.bytesOut.Add(int64(out.Len()))
	_, _ = w.ResponseWriter.Write(out.Bytes())
}

func (cm *Compression) compressible(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.HasPrefix(contentType, ct) {
			return true
		}
	}
	return false
}

// Stats reports how much the middleware has saved.
func (cm *Compression) Stats() map[string]any {
	in := cm.bytesIn.Load()
	out := cm.bytesOut.Load()
	ratio := 1.0
	if in > 0 {
		ratio = float64(out) / float64(in)
	}
	return map[string]any{
		"responses":         cm.requests.Load(),
		"compressed":        cm.compressed.Load(),
		"bytes_in":          in,
		"bytes_out":         out,
		"compression_ratio": ratio,
	}
}

// bufferedWriter holds the body until the handler chain returns.
type bufferedWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	return w.body.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Written() bool {
	return w.body.Len() > 0 || w.ResponseWriter.Written()
}

func (w *bufferedWriter) Size() int {
	if w.ResponseWriter.Written() {
		return w.ResponseWriter.Size()
	}
	return w.body.Len()
}

// Flush is a no-op; buffered responses are written when the chain returns.
func (w *bufferedWriter) Flush() {}

var _ http.Flusher = (*bufferedWriter)(nil)
