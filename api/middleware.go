package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// GzipRequestMiddleware swaps a gzip-compressed request body for its
// decompressed stream before any handler decodes it. A body that does
// not start with a valid gzip header is rejected with 400.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !requestIsGzipped(req) {
				return next(c)
			}
			if err := inflateRequestBody(req); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}
			return next(c)
		}
	}
}

func requestIsGzipped(req *http.Request) bool {
	encodings := req.Header.Get(echo.HeaderContentEncoding)
	for encodings != "" {
		var enc string
		enc, encodings, _ = strings.Cut(encodings, ",")
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

// inflateRequestBody replaces req.Body with the decompressed stream and
// strips the headers that described the compressed form, so downstream
// decoding sees an ordinary JSON request.
func inflateRequestBody(req *http.Request) error {
	raw := req.Body
	zr, err := gzip.NewReader(raw)
	if err != nil {
		_ = raw.Close()
		return err
	}
	req.Body = inflatedBody{Reader: zr, raw: raw}
	req.ContentLength = -1
	req.Header.Del(echo.HeaderContentEncoding)
	req.Header.Del(echo.HeaderContentLength)
	return nil
}

// inflatedBody reads decompressed bytes while keeping a handle on the
// network body, closing both when the request finishes.
type inflatedBody struct {
	*gzip.Reader
	raw io.ReadCloser
}

func (b inflatedBody) Close() error {
	err := b.Reader.Close()
	if cerr := b.raw.Close(); err == nil {
		err = cerr
	}
	return err
}
