// Package status serves the logfs status endpoints over HTTP.
package status

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dendrascience/logfs/journal"
	"github.com/dendrascience/logfs/logfs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MountLister reports the live instances. *logfs.Driver implements it.
type MountLister interface {
	Mounted() []*logfs.Superblock
}

// Response is the envelope of every JSON reply.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// MountInfo describes one mounted instance.
type MountInfo struct {
	Device     string      `json:"device"`
	UUID       string      `json:"uuid"`
	Magic      string      `json:"magic"`
	State      string      `json:"state"`
	Flags      string      `json:"flags"`
	LiveInodes int         `json:"live_inodes"`
	Usage      logfs.Usage `json:"usage"`
}

// NewRouter returns the status handler. reg may be nil, in which case
// /metrics is not served.
func NewRouter(mounts MountLister, j *journal.Journal, reg *prometheus.Registry, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Response{Status: "ok", Timestamp: time.Now().UTC()})
	})

	r.Get("/mounts", func(w http.ResponseWriter, r *http.Request) {
		infos := []MountInfo{}
		for _, sb := range mounts.Mounted() {
			infos = append(infos, MountInfo{
				Device:     sb.Device,
				UUID:       sb.UUID.String(),
				Magic:      "0x" + strconv.FormatUint(uint64(sb.Magic), 16),
				State:      sb.State().String(),
				Flags:      sb.Flags.String(),
				LiveInodes: sb.LiveInodes(),
				Usage:      sb.Usage(),
			})
		}
		writeJSON(w, http.StatusOK, Response{Status: "ok", Timestamp: time.Now().UTC(), Data: infos})
	})

	r.Get("/journal", func(w http.ResponseWriter, r *http.Request) {
		if j == nil {
			writeJSON(w, http.StatusNotFound, Response{Status: "error", Timestamp: time.Now().UTC(), Error: "journal disabled"})
			return
		}
		var since uint64
		if s := r.URL.Query().Get("since"); s != "" {
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, Response{Status: "error", Timestamp: time.Now().UTC(), Error: "invalid since: " + s})
				return
			}
			since = n
		}
		records := j.Since(since)
		if records == nil {
			records = []journal.Record{}
		}
		writeJSON(w, http.StatusOK, Response{Status: "ok", Timestamp: time.Now().UTC(), Data: records})
	})

	if reg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("status request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start).String(),
			)
		})
	}
}
