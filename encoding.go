package compress

import (
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Encoding is an HTTP content-coding. Values follow the IANA
// HTTP Content Coding Registry names as they appear on the wire.
type Encoding string

const (
	EncodingIdentity Encoding = "identity"
	EncodingGzip     Encoding = "gzip"
	EncodingDeflate  Encoding = "deflate"
	EncodingBrotli   Encoding = "br"
	EncodingZstd     Encoding = "zstd"
)

// DefaultEncodings is the set of content-codings offered when
// Config.Encodings is nil. The order is the server-side preference used
// to break client quality ties. Zstd is supported but opt-in.
var DefaultEncodings = []Encoding{EncodingBrotli, EncodingGzip, EncodingDeflate}

// newEncoder wraps w in a streaming encoder for enc, configured with
// the level resolved from levels. Bytes written to the returned writer
// come out of w compressed, in order; Close flushes the codec trailer
// and releases any codec resources.
func newEncoder(w io.Writer, enc Encoding, levels CompressionLevels) (io.WriteCloser, error) {
	switch enc {
	case EncodingBrotli:
		return brotli.NewWriterLevel(w, levels.Brotli.brotliLevel()), nil
	case EncodingGzip:
		return gzip.NewWriterLevel(w, levels.Gzip.gzipLevel())
	case EncodingDeflate:
		return flate.NewWriter(w, levels.Deflate.flateLevel())
	case EncodingZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(levels.Zstd.zstdLevel()))
	default:
		return nil, fmt.Errorf("no encoder for content-coding %q", enc)
	}
}
