package main

import (
	"expvar"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
)

// setupLogging builds the session logger. The terminal belongs to the
// renderer, so nothing may ever log to stdout/stderr: debug runs write
// a tint-formatted log file under the temp dir, everything else is
// discarded.
func setupLogging(cfg Config) (*slog.Logger, func()) {
	if !cfg.Debug {
		return slog.New(slog.DiscardHandler), func() {}
	}
	path := filepath.Join(os.TempDir(), "termweb-debug.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return slog.New(slog.DiscardHandler), func() {}
	}
	log := slog.New(tint.NewHandler(f, &tint.Options{
		Level:   slog.LevelDebug,
		NoColor: true,
	}))
	log.Info("debug logging enabled", "path", path)
	return log, func() { _ = f.Close() }
}

// setupDebugHandlers exposes the session's counters and profiles for
// live inspection. The viewer registers termweb_frames_rendered,
// termweb_frames_skipped, and termweb_input_events with expvar at
// package init; importing expvar puts /debug/vars on the default mux
// and the pprof blank import adds /debug/pprof, so serving the default
// mux surfaces all of them.
func setupDebugHandlers(addr string) error {
	started := expvar.NewString("termweb_started")
	started.Set(time.Now().Format(time.RFC3339))
	expvar.NewInt("termweb_pid").Set(int64(os.Getpid()))

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go http.Serve(l, http.DefaultServeMux) //nolint:errcheck
	return nil
}
