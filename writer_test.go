package compress

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeVary(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		want     []string
	}{
		{
			name: "added when absent",
			want: []string{"Accept-Encoding"},
		},
		{
			name:     "merged alongside other tokens",
			existing: []string{"Origin"},
			want:     []string{"Origin", "Accept-Encoding"},
		},
		{
			name:     "not duplicated",
			existing: []string{"Accept-Encoding"},
			want:     []string{"Accept-Encoding"},
		},
		{
			name:     "case-insensitive match",
			existing: []string{"accept-encoding"},
			want:     []string{"accept-encoding"},
		},
		{
			name:     "token found in combined value",
			existing: []string{"Origin, Accept-Encoding"},
			want:     []string{"Origin, Accept-Encoding"},
		},
		{
			name:     "wildcard already covers everything",
			existing: []string{"*"},
			want:     []string{"*"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for _, v := range tt.existing {
				h.Add("Vary", v)
			}
			mergeVary(h, "Accept-Encoding")
			assert.Equal(t, tt.want, h.Values("Vary"))
		})
	}
}

func TestHasNoTransform(t *testing.T) {
	tests := []struct {
		name         string
		cacheControl []string
		want         bool
	}{
		{name: "absent header", want: false},
		{name: "lone directive", cacheControl: []string{"no-transform"}, want: true},
		{name: "among other directives", cacheControl: []string{"public, max-age=60, no-transform"}, want: true},
		{name: "case-insensitive", cacheControl: []string{"No-Transform"}, want: true},
		{name: "split across header lines", cacheControl: []string{"public", "no-transform"}, want: true},
		{name: "other directives only", cacheControl: []string{"no-store, no-cache"}, want: false},
		{name: "not fooled by parameter values", cacheControl: []string{"max-age=60"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for _, v := range tt.cacheControl {
				h.Add("Cache-Control", v)
			}
			assert.Equal(t, tt.want, hasNoTransform(h))
		})
	}
}

func TestFlushForcesStreamingCompression(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(echo.HeaderAcceptEncoding, "gzip")

	// Both chunks stay below the threshold; the explicit flush marks
	// the response as streaming, so it is compressed anyway.
	rec, err := doRequest(t, Config{}, req, func(c echo.Context) error {
		res := c.Response()
		if _, err := res.Write([]byte("hello ")); err != nil {
			return err
		}
		res.Flush()
		_, err := res.Write([]byte("world"))
		return err
	})
	require.NoError(t, err)

	require.Equal(t, []string{"gzip"}, rec.Header().Values(echo.HeaderContentEncoding))
	assert.True(t, rec.Flushed)
	assert.Equal(t, []byte("hello world"), decode(t, "gzip", rec.Body))
}

func TestFlushedEmptyBodyRoundTrips(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(echo.HeaderAcceptEncoding, "gzip")

	rec, err := doRequest(t, Config{}, req, func(c echo.Context) error {
		c.Response().WriteHeader(http.StatusOK)
		c.Response().Flush()
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, []string{"gzip"}, rec.Header().Values(echo.HeaderContentEncoding))
	assert.Empty(t, decode(t, "gzip", rec.Body))
}

func TestVaryMergePreservesHandlerTokens(t *testing.T) {
	body := payload(4 * DefaultThreshold)
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(echo.HeaderAcceptEncoding, "gzip")

	rec, err := doRequest(t, Config{}, req, func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderVary, "Origin")
		return c.Blob(http.StatusOK, "text/plain", body)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Origin", "Accept-Encoding"}, rec.Header().Values(echo.HeaderVary))
	assert.Equal(t, body, decode(t, "gzip", rec.Body))
}

func TestDeclaredLengthIsRemovedOnlyWhenCompressing(t *testing.T) {
	small := payload(8)
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(echo.HeaderAcceptEncoding, "gzip")

	rec, err := doRequest(t, Config{}, req, func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentLength, "8")
		return c.Blob(http.StatusOK, "text/plain", small)
	})
	require.NoError(t, err)

	assert.Equal(t, "8", rec.Header().Get(echo.HeaderContentLength))
	assert.Equal(t, small, rec.Body.Bytes())
}
