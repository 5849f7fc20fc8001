package profiling

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"
)

const (
	Endpoint          = "localhost:9091"
	ReadHeaderTimeout = 2 * time.Second
)

// Handler serves the pprof index, profiles and traces under /debug/pprof/.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return mux
}

// Enable the profiling endpoint
func Enable() {
	go func() {
		server := &http.Server{
			Addr:              Endpoint,
			Handler:           Handler(),
			ReadHeaderTimeout: ReadHeaderTimeout,
		}

		if err := server.ListenAndServe(); err != nil {
			slog.Error("Failed to start profiling server", "error", err)
		}
	}()

	slog.Info("profiling enabled", "endpoint", Endpoint+"/debug/pprof")
}
