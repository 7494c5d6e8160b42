package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DebugServer is the optional local HTTP surface exposing health and
// prometheus metrics. It is off unless an address is configured.
type DebugServer struct {
	app     string
	version string
	started time.Time
	status  func() any

	srv *http.Server
}

func NewDebugServer(app, version string, status func() any) *DebugServer {
	return &DebugServer{
		app:     app,
		version: version,
		started: time.Now(),
		status:  status,
	}
}

func (d *DebugServer) Run(ctx context.Context, addr string) error {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(d.started).String(),
			"service": d.app,
			"version": d.version,
		})
	})
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, d.status())
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	d.srv = &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.srv.Shutdown(shutdownCtx)
	}()

	err := d.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
