// Package server exposes the message router over HTTP for the browser side.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"go.aimuz.me/comictl/internal/app"
	"go.aimuz.me/comictl/media"
)

// MaxPollWait caps the wait query parameter of GET /events.
const MaxPollWait = 30 * time.Second

// Handler answers inbound messages.
type Handler interface {
	Handle(ctx context.Context, msg app.Message) (app.Reply, error)
}

// Images resolves image handles.
type Images interface {
	Open(handle string) (media.Blob, bool)
}

// Server is the HTTP front of the translation core.
type Server struct {
	e      *echo.Echo
	router Handler
	queue  *Queue
	images Images
}

// New creates a Server and registers its routes.
func New(router Handler, queue *Queue, images Images) *Server {
	s := &Server{
		e:      echo.New(),
		router: router,
		queue:  queue,
		images: images,
	}
	s.e.HideBanner = true
	s.e.HidePort = true

	s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error == nil {
				slog.Debug("request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				slog.Warn("request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))
	s.e.Use(middleware.Recover())
	s.e.Use(middleware.CORS())

	s.e.GET("/health", s.health)
	s.e.POST("/messages", s.handleMessage)
	s.e.GET("/events", s.events)
	s.e.GET("/images/:handle", s.image)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	slog.Info("starting server", "address", addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleMessage(c echo.Context) error {
	var msg app.Message
	if err := c.Bind(&msg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid message")
	}
	if msg.Action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action required")
	}

	reply, err := s.router.Handle(c.Request().Context(), msg)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, app.ErrUnknownAction) {
			status = http.StatusNotFound
		}
		return c.JSON(status, app.Reply{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) events(c echo.Context) error {
	if wait := c.QueryParam("wait"); wait != "" {
		d, err := time.ParseDuration(wait)
		if err != nil || d < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid wait")
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), min(d, MaxPollWait))
		s.queue.Wait(ctx)
		cancel()
	}
	return c.JSON(http.StatusOK, s.queue.Drain())
}

func (s *Server) image(c echo.Context) error {
	blob, ok := s.images.Open(c.Param("handle"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown image handle")
	}
	return c.Blob(http.StatusOK, blob.ContentType, blob.Data)
}
