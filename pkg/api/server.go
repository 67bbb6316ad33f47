// Package api exposes the conversion pipeline over HTTP.
package api

import (
	"net/http"
	"os"

	"github.com/getsentry/raven-go"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"scanmesh/pkg/config"
	"scanmesh/pkg/lock"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server holds the router and what the handlers share. Conversions on the
// same output name are serialized through locker.
type Server struct {
	cfg    *config.Config
	locker lock.Locker
	router *gin.Engine
}

// NewServer creates the upload and output directories and registers all
// routes. A nil locker falls back to an in-process lock.
func NewServer(cfg *config.Config, locker lock.Locker) (*Server, error) {
	for _, dir := range []string{cfg.Server.UploadDir, cfg.Server.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	if cfg.Server.SentryDSN != "" {
		if err := raven.SetDSN(cfg.Server.SentryDSN); err != nil {
			log.Warnf("[Main] Couldn't configure Sentry: %v", err)
		}
	}

	s := &Server{cfg: cfg, locker: locker}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address.
func (s *Server) Run() error {
	log.Infof("[Main] Listening on %s", s.cfg.Server.Addr)
	return s.router.Run(s.cfg.Server.Addr)
}

func (s *Server) routes() *gin.Engine {
	router := gin.Default()
	router.Use(cors())

	api := router.Group("/api")
	api.GET("/health", s.health)
	api.POST("/convert", s.convert)
	api.POST("/convert-dicom-folder", s.convertDICOMFolder)
	api.GET("/download/:filename", s.download)
	api.GET("/preview/:filename", s.preview)
	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With, X-PINGOTHER, X-File-Name, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// fail answers with {success:false, error} and reports 5xx errors to
// Sentry when configured.
func (s *Server) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Errorf("[API] %s %s: %+v", c.Request.Method, c.FullPath(), err)
		if s.cfg.Server.SentryDSN != "" {
			raven.CaptureError(err, map[string]string{"route": c.FullPath()})
		}
	} else {
		log.Debugf("[API] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}
