package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

const (
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(self), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func cspHome(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data:; style-src 'self'")
}

// cspGame opens the game page up to the detector sdk, which is loaded from
// its own origin and works on camera frames in blob workers.
func cspGame(cfg *Config, w http.ResponseWriter) {
	sdk := scriptOrigin(cfg.detectorScript)

	policy := []string{
		"default-src 'self'",
		"script-src 'self' 'unsafe-eval' " + sdk,
		"connect-src 'self' ws: wss: " + sdk,
		"img-src 'self' data: blob:",
		"media-src 'self' blob: mediastream:",
		"worker-src 'self' blob:",
		"style-src 'self' 'unsafe-inline'",
	}

	w.Header().Set("Content-Security-Policy", strings.Join(policy, "; "))
	w.Header().Set("Cross-Origin-Embedder-Policy", "unsafe-none")
}

// scriptOrigin returns scheme://host of an absolute url, or 'self'.
func scriptOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "'self'"
	}
	return u.Scheme + "://" + u.Host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("mimicme v" + releaseVersion + "\n"))
		if err != nil {
			reportError(errs, err)

			return
		}

		log.Info().
			Str("request", middleware.GetReqID(r.Context())).
			Msgf("SERVE: Version page (%s) to %s in %s",
				humanReadableSize(int64(written)),
				r.RemoteAddr,
				time.Since(startTime).Round(time.Microsecond),
			)
	}
}

// reportError never blocks: once drainErrors has stopped and the buffer is
// full, further errors are dropped.
func reportError(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}

// drainErrors logs handler write failures until ctx is done.
func drainErrors(ctx context.Context, errs <-chan error) {
	for {
		select {
		case err := <-errs:
			log.Debug().Err(err).Msg("SERVE: write failed")
		case <-ctx.Done():
			return
		}
	}
}

// newHandler builds the router with every route and the middleware chain.
func newHandler(ctx context.Context, cfg *Config, clock Clock) (http.Handler, *GameManager) {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		log.Error().
			Str("request", middleware.GetReqID(r.Context())).
			Interface("panic", i).
			Msg("SERVE: Recovered from panic")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage(cfg.prefix, "Server Error", "An error has occurred. Please try again."))
	}

	errs := make(chan error, 64)
	go drainErrors(ctx, errs)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, errs))

	mux.GET(cfg.prefix+"/assets/*asset", serveAssets(cfg, errs))

	mux.GET(cfg.prefix+"/favicons/*favicon", serveFavicons(cfg, errs))

	mux.GET(cfg.prefix+"/favicon.ico", serveFavicons(cfg, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	gm := newGameManager(ctx, cfg, clock)

	registerMimicGame(cfg, "/mimic", mux, gm)

	return middleware.RequestID(middleware.RealIP(mux)), gm
}

func ServePage(ctx context.Context, cfg *Config) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	log.Info().Msgf("START: mimicme v%s", releaseVersion)

	handler, _ := newHandler(ctx, cfg, realClock{})

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           handler,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
	}

	go func() {
		var err error

		log.Info().Msgf("SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)

		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("SERVE: Listener failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
