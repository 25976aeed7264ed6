package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labfleet/fleetwatch/internal/server"
	"go.uber.org/zap"
)

// Status is a snapshot of the supervisor, served on /status.
type Status struct {
	State      string    `json:"state"`
	Pid        int       `json:"pid,omitempty"`
	LogPath    string    `json:"log_path,omitempty"`
	Recovering bool      `json:"recovering"`
	Restarts   int       `json:"restarts"`
	Since      time.Time `json:"since"`
}

// NewStatusHandler serves the supervisor status as json. Anything but a
// running daemon is answered with 503, so the endpoint doubles as a
// health check.
func NewStatusHandler(sv *Supervisor, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		status := sv.Status()

		code := http.StatusOK
		if status.State != StateRunning.String() {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)

		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Warn("failed to write status", zap.Error(err))
		}
	})
}

func NewStatusRoute(sv *Supervisor, log *zap.Logger) server.HttpHandlerResult {
	return server.AsHttpHandler("/status", NewStatusHandler(sv, log))
}
