// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package middleware

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"strings"
)

// ETag computes a weak validator over successful GET /api/ response bodies
// and answers If-None-Match revalidations with 304. Buffering the body
// costs memory per in-flight request, which is why the layer is off by
// default and switched on in config.
func ETag(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		buf := &bufferingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(buf, r)

		if buf.status != http.StatusOK {
			buf.flush()
			return
		}

		sum := md5.Sum(buf.body.Bytes())
		tag := hex.EncodeToString(sum[:])
		etag := `"` + tag + `"`

		// Clients may send the tag unquoted; compare the bare value.
		if strings.Trim(r.Header.Get("If-None-Match"), `"`) == tag {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		buf.flush()
	})
}

// bufferingWriter holds the body back until the middleware decides
// between a full response and a 304.
type bufferingWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *bufferingWriter) WriteHeader(status int) {
	w.status = status
}

func (w *bufferingWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bufferingWriter) flush() {
	w.ResponseWriter.WriteHeader(w.status)
	if w.body.Len() > 0 {
		w.ResponseWriter.Write(w.body.Bytes())
	}
}
