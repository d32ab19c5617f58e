package http

import (
	"net/http"
	"time"

	"github.com/openfedid/fedid/internal/idp/store"
	"github.com/openfedid/fedid/pkg/httpx"
)

// ReadyzHandler checks that critical dependencies answer before declaring
// the service ready.
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"database": "ok"}
		status := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks["database"] = "unreachable"
			status = http.StatusServiceUnavailable
		}

		body := HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		}
		if status != http.StatusOK {
			body.Status = "degraded"
		}

		httpx.WriteJSON(w, status, body)
	}
}
