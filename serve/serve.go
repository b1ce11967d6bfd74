// Package serve runs the operational HTTP endpoint: health and metrics.
package serve

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/C0nstantin/mailrelay/errors"
	"github.com/C0nstantin/mailrelay/log"
)

type Controller interface {
	InitRoute(routes gin.IRoutes, path string)
}

type Middleware interface {
	Handler() []gin.HandlerFunc
}

type HTTPServe struct {
	Controllers map[string]Controller
	BasePath    string
	R           *gin.Engine
	Listen      string
	Middleware  []Middleware
	Logger      log.Logger

	srv *http.Server
}

func (s *HTTPServe) Init() {
	if s.BasePath == "" {
		s.BasePath = "/"
	}
	if s.Listen == "" {
		s.Listen = ":8080"
	}
	if s.Logger == nil {
		s.Logger = log.NewLogger("serve")
	}
	if s.R == nil {
		if !log.IsDebug() {
			gin.SetMode(gin.ReleaseMode)
		}
		s.R = gin.New()
		s.R.Use(gin.Recovery())
		if log.IsDebug() {
			s.R.Use(gin.LoggerWithWriter(log.Standard().Writer()))
		}
	}

	group := s.R.Group(s.BasePath)
	for _, middleware := range s.Middleware {
		group.Use(middleware.Handler()...)
	}
	for p, c := range s.Controllers {
		if c != nil {
			c.InitRoute(group, p)
		}
	}
	s.R.GET("/ping", func(context *gin.Context) {
		context.String(http.StatusOK, "pong")
	})
}

// Run serves until ctx is done and then shuts the server down.
func (s *HTTPServe) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.Listen,
		Handler:           s.R,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.Logger.Infof("listening on %s", s.Listen)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Er(err, "serve %s", s.Listen)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.E(s.srv.Shutdown(shutdownCtx))
	}
}
