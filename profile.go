/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/julienschmidt/httprouter"
)

// registerProfileHandlers serves net/http/pprof and expvar under /debug.
func registerProfileHandlers(cfg *Config, mux *httprouter.Router) {
	profiler := http.StripPrefix(cfg.prefix+"/debug", middleware.Profiler())

	mux.Handler(http.MethodGet, cfg.prefix+"/debug/*path", profiler)
	mux.Handler(http.MethodPost, cfg.prefix+"/debug/*path", profiler)
}
