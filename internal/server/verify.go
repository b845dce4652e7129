package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// Slack signs each request with HMAC-SHA256 over "v0:<timestamp>:<body>".
// Requests older than five minutes are rejected to blunt replay.
const signatureVersion = "v0"
const maxTimestampSkew = 5 * time.Minute

func verifySignature(secret string, now func() time.Time) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			tsHeader := req.Header.Get("X-Slack-Request-Timestamp")
			signature := req.Header.Get("X-Slack-Signature")
			if tsHeader == "" || signature == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing signature headers")
			}

			ts, err := strconv.ParseInt(tsHeader, 10, 64)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid request timestamp")
			}
			skew := now().Sub(time.Unix(ts, 0))
			if skew > maxTimestampSkew || skew < -maxTimestampSkew {
				return echo.NewHTTPError(http.StatusUnauthorized, "stale request timestamp")
			}

			body, err := io.ReadAll(req.Body)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write([]byte(signatureVersion + ":" + tsHeader + ":"))
			mac.Write(body)
			expected := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))

			if !hmac.Equal([]byte(expected), []byte(signature)) {
				return echo.NewHTTPError(http.StatusUnauthorized, "signature mismatch")
			}

			return next(c)
		}
	}
}
