package web

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/bulkio/internal/web/middleware"
)

// triggeredBy names who started a job: the X-Triggered-By header when a
// caller supplies one, else a short API key fingerprint, else the client IP.
func triggeredBy(r *http.Request) string {
	if who := strings.TrimSpace(r.Header.Get("X-Triggered-By")); who != "" {
		if len(who) > 128 {
			who = who[:128]
		}
		return who
	}
	if key := middleware.APIKey(r); key != "" {
		if len(key) > 6 {
			key = key[:6]
		}
		return "key:" + key + "…"
	}
	return middleware.ClientIP(r)
}
