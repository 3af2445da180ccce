package compress

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/tphakala/echo-compress/internal/negotiate"
)

// compressWriter is the response writer the middleware installs in
// place of the original. The compress-or-not decision is deferred until
// the response headers are committed and, for bodies of undeclared
// length, until enough body bytes have accumulated to clear the
// threshold. Until then the held status line is not sent downstream, so
// Content-Encoding and Content-Length can still be rewritten.
type compressWriter struct {
	http.ResponseWriter

	threshold int
	levels    CompressionLevels
	encodings []string
	accepted  []negotiate.Spec
	logger    *slog.Logger

	status    int            // status from WriteHeader, 0 until seen
	decided   bool           // compress-or-not settled
	committed bool           // status line sent to the underlying writer
	encoder   io.WriteCloser // non-nil iff compressing
	buf       []byte         // body bytes held while undecided, <= threshold+last chunk
	err       error          // sticky write error
}

// WriteHeader runs the header-driven eligibility checks. Order matters:
// no-transform forbids touching the response at all (including Vary),
// Vary is merged before any later short-circuit, and an existing
// encoding or a known-small body passes through untouched.
func (cw *compressWriter) WriteHeader(code int) {
	if cw.status != 0 {
		return
	}
	cw.status = code

	h := cw.Header()
	if hasNoTransform(h) {
		// https://www.rfc-editor.org/rfc/rfc9111#section-5.2.2.6
		cw.settle(nil)
		return
	}

	// The cached response depends on Accept-Encoding from here on,
	// even when compression is skipped below.
	mergeVary(h, "Accept-Encoding")

	if ce := h.Get("Content-Encoding"); ce != "" && !strings.EqualFold(ce, "identity") {
		// Never double-encode or override a downstream encoding.
		cw.settle(nil)
		return
	}

	if cl := h.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			if n < int64(cw.threshold) {
				cw.settle(nil)
			} else {
				cw.err = cw.negotiate()
			}
			return
		}
	}
	// Body length unknown: hold the status line and buffer body bytes
	// until the threshold settles the decision one way or the other.
}

func (cw *compressWriter) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	if cw.status == 0 {
		cw.WriteHeader(http.StatusOK)
		if cw.err != nil {
			return 0, cw.err
		}
	}
	if !cw.decided {
		cw.buf = append(cw.buf, p...)
		if len(cw.buf) >= cw.threshold {
			if cw.err = cw.negotiate(); cw.err != nil {
				return 0, cw.err
			}
		}
		return len(p), nil
	}
	if cw.encoder != nil {
		return cw.encoder.Write(p)
	}
	return cw.ResponseWriter.Write(p)
}

// negotiate picks a content-coding for the captured Accept-Encoding
// preferences, rewrites the response headers accordingly and replays
// any buffered body bytes through the chosen destination.
func (cw *compressWriter) negotiate() error {
	enc := Encoding(negotiate.Best(cw.accepted, cw.encodings))
	if enc == "" || enc == EncodingIdentity {
		// Nothing mutually acceptable; Vary stays as merged above.
		return cw.settle(nil)
	}

	encoder, err := newEncoder(cw.ResponseWriter, enc, cw.levels)
	if err != nil {
		cw.logger.Error("building encoder, sending uncompressed", "encoding", string(enc), "error", err)
		return cw.settle(nil)
	}

	h := cw.Header()
	h.Set("Content-Encoding", string(enc))
	// The compressed size is unknown until the stream is drained.
	h.Del("Content-Length")
	cw.logger.Debug("compressing response", "encoding", string(enc), "status", cw.status)
	return cw.settle(encoder)
}

// settle finalizes the decision: encoder nil means pass-through. The
// held status line is committed and buffered bytes are drained into the
// chosen destination.
func (cw *compressWriter) settle(encoder io.WriteCloser) error {
	cw.decided = true
	cw.encoder = encoder
	cw.commit()
	if len(cw.buf) == 0 {
		return nil
	}
	dst := io.Writer(cw.ResponseWriter)
	if cw.encoder != nil {
		dst = cw.encoder
	}
	_, err := dst.Write(cw.buf)
	cw.buf = nil
	return err
}

// commit sends the held status line downstream. Headers are final past
// this point.
func (cw *compressWriter) commit() {
	if cw.committed {
		return
	}
	cw.committed = true
	if cw.status == 0 {
		cw.status = http.StatusOK
	}
	cw.ResponseWriter.WriteHeader(cw.status)
}

// Flush implements http.Flusher. A flush before the decision point
// marks the response as streaming: its total length is unknown, so it
// is negotiated for compression immediately, matching the treatment of
// unsized bodies.
func (cw *compressWriter) Flush() {
	if !cw.decided {
		if cw.status == 0 {
			cw.status = http.StatusOK
		}
		if cw.err = cw.negotiate(); cw.err != nil {
			return
		}
	}
	if f, ok := cw.encoder.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			cw.err = err
			return
		}
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker. A hijacked connection is no longer
// an HTTP response body; all compression state is dropped.
func (cw *compressWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := cw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T does not implement http.Hijacker", cw.ResponseWriter)
	}
	cw.discard()
	return h.Hijack()
}

// Unwrap exposes the original writer to http.ResponseController.
func (cw *compressWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

// Close settles a still-undecided response (the body ended below the
// threshold, so it goes out raw) and releases the encoder. Idempotent.
func (cw *compressWriter) Close() error {
	if !cw.decided {
		// A response with no status and no body stays untouched so the
		// server can finish it itself.
		if cw.status == 0 && len(cw.buf) == 0 {
			cw.decided = true
			return nil
		}
		return cw.settle(nil)
	}
	if cw.encoder != nil {
		err := cw.encoder.Close()
		cw.encoder = nil
		return err
	}
	return nil
}

// discard abandons held output and releases the encoder without
// flushing, so a later writer (e.g. the framework's error handler) owns
// the response.
func (cw *compressWriter) discard() {
	cw.decided = true
	cw.buf = nil
	if cw.encoder != nil {
		cw.encoder.Close()
		cw.encoder = nil
	}
}

// hasNoTransform reports whether the response's Cache-Control carries
// the no-transform directive.
func hasNoTransform(h http.Header) bool {
	for _, value := range h.Values("Cache-Control") {
		for _, directive := range strings.Split(value, ",") {
			name, _, _ := strings.Cut(directive, "=")
			if strings.EqualFold(strings.TrimSpace(name), "no-transform") {
				return true
			}
		}
	}
	return false
}

// mergeVary adds token to the Vary header unless an existing token (or
// "*") already covers it. Existing values are never overwritten.
func mergeVary(h http.Header, token string) {
	for _, value := range h.Values("Vary") {
		for _, t := range strings.Split(value, ",") {
			t = strings.TrimSpace(t)
			if t == "*" || strings.EqualFold(t, token) {
				return
			}
		}
	}
	h.Add("Vary", token)
}
