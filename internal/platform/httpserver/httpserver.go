package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults. writeTimeout is zero when
// streaming endpoints are served.
func New(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}
