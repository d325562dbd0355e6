package status

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"offsetcron/internal/runtime/supervisor"
	"offsetcron/internal/storage"
	"offsetcron/internal/task/scheduler"
)

const maxHistory = 1000

type jobView struct {
	scheduler.JobInfo
	NextIn string `json:"next_in"`
}

type jobsView struct {
	Now  time.Time `json:"now"`
	Jobs []jobView `json:"jobs"`
}

type healthView struct {
	Status     string             `json:"status"`
	Error      string             `json:"error,omitempty"`
	Jobs       int                `json:"jobs"`
	Goroutines []supervisor.Stats `json:"goroutines,omitempty"`
}

// Handler returns the status mux. A non-empty token is required on every
// route as a bearer header or ?token= query parameter.
func (s *Service) Handler(token string) http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(token, h) }

	mux.HandleFunc("GET /healthz", auth(s.handleHealth))
	mux.HandleFunc("GET /jobs", auth(s.handleJobs))
	mux.HandleFunc("GET /history", auth(s.handleHistory))

	mux.HandleFunc("/debug/pprof/", auth(hpprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", auth(hpprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", auth(hpprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", auth(hpprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", auth(hpprof.Trace))
	return mux
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	v := healthView{Status: "ok"}
	if s.jobs != nil {
		v.Jobs = len(s.jobs.Snapshot().Jobs)
	}
	code := http.StatusOK
	if s.health != nil {
		stats, err := s.health()
		v.Goroutines = stats
		if err != nil {
			v.Status, v.Error = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, v)
}

func (s *Service) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeJSON(w, http.StatusOK, jobsView{Now: time.Now().UTC(), Jobs: []jobView{}})
		return
	}
	snap := s.jobs.Snapshot()
	out := jobsView{Now: snap.Now, Jobs: make([]jobView, 0, len(snap.Jobs))}
	for _, j := range snap.Jobs {
		out.Jobs = append(out.Jobs, jobView{JobInfo: j, NextIn: humanize.RelTime(j.Next, snap.Now, "ago", "from now")})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := storage.Query{Name: r.URL.Query().Get("job")}
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		q.Limit = min(n, maxHistory)
	}
	q.FailedOnly, _ = strconv.ParseBool(r.URL.Query().Get("failed"))

	if s.history == nil {
		http.Error(w, storage.ErrDisabled.Error(), http.StatusNotFound)
		return
	}
	rows, err := s.history.RecentFirings(r.Context(), q)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []storage.Firing{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if tokenMatch(got, tok) {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && tokenMatch(strings.TrimSpace(strings.TrimPrefix(ah, p)), tok) {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func tokenMatch(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
