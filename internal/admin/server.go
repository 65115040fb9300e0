// Package admin serves health, readiness, metrics and channel state for a
// running client over HTTP.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/redclient/internal/logging"
	"github.com/danmuck/redclient/internal/observability"
	"github.com/danmuck/redclient/internal/pubsub"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Session is the subscriber state the admin routes report on.
// *pubsub.Subscriber satisfies it.
type Session interface {
	Snapshot() []pubsub.ChannelInfo
	Done() <-chan struct{}
	Err() error
}

type Server struct {
	name    string
	session Session
	started time.Time
	log     zerolog.Logger
	router  *gin.Engine
}

func New(name string, session Session, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		name:    name,
		session: session,
		started: time.Now(),
		log:     logging.Logger("admin"),
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AccessLog(s.log, name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	s.router = r
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": s.name,
			"uptime":  time.Since(s.started).String(),
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		select {
		case <-s.session.Done():
			body := gin.H{"ready": false, "service": s.name}
			if err := s.session.Err(); err != nil {
				body["error"] = err.Error()
			}
			c.JSON(http.StatusServiceUnavailable, body)
		default:
			c.JSON(http.StatusOK, gin.H{"ready": true, "service": s.name})
		}
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/channels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"channels": s.session.Snapshot()})
	})
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		if v := strings.TrimSpace(origin); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
