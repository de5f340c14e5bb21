package utils

import (
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// PerfHandler serves pprof routes
func PerfHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// RunPerfEndpoint serves pprof on debug.port, does nothing when the port is not set
func RunPerfEndpoint() {
	port := goapp.Config.GetInt("debug.port")
	if port <= 0 {
		goapp.Log.Info().Msg("no debug.port provided, skip perf endpoint")
		return
	}
	goapp.Log.Info().Msgf("Starting Debug http endpoint at [::]:%d", port)
	srv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: PerfHandler(), ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		goapp.Log.Error().Err(err).Msg("can't start Debug endpoint")
	}
}
