// Package server exposes the comparison pipeline over HTTP: a health
// endpoint, Prometheus metrics, and a multipart /compare endpoint that
// returns the JSON verdict object.
package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cmdrvl/rvl/pkg/config"
	"github.com/cmdrvl/rvl/pkg/errors"
	"github.com/cmdrvl/rvl/pkg/logger"
	"github.com/cmdrvl/rvl/pkg/pipeline"
)

// maxUploadBytes caps one /compare request body.
const maxUploadBytes = 50 << 20

// Version is stamped into /health responses.
var Version = "0.1.0"

// Config is the server configuration from environment.
type Config struct {
	Host     string
	Port     int
	APIToken string
}

// ConfigFromEnv reads RVL_HOST, RVL_PORT, and RVL_API_TOKEN.
func ConfigFromEnv() Config {
	cfg := Config{Host: "0.0.0.0", Port: 8080}
	if host := os.Getenv("RVL_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("RVL_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Port = parsed
		}
	}
	cfg.APIToken = os.Getenv("RVL_API_TOKEN")
	return cfg
}

// Run builds the router and serves until the listener fails.
func Run(cfg Config) error {
	log := logger.With(zap.String("component", "rvl-server"))

	if cfg.APIToken != "" {
		log.Info("API token authentication enabled")
	} else {
		log.Warn("no RVL_API_TOKEN set - API is unauthenticated")
	}

	router := NewRouter(cfg)
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Info("listening", zap.String("addr", addr))

	if err := router.Run(addr); err != nil {
		return errors.Wrap(err, errors.TypeServer, "server stopped")
	}
	return nil
}

// NewRouter assembles the gin router with all routes installed.
func NewRouter(cfg Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = maxUploadBytes

	registry := prometheus.NewRegistry()
	m := newMetrics(registry)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.POST("/compare", authMiddleware(cfg.APIToken), compareHandler(m))

	return router
}

func authMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header != "Bearer "+token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing bearer token"})
			return
		}
		c.Next()
	}
}

// compareHandler accepts multipart form data: `old` and `new` files plus
// optional `key`, `threshold`, `tolerance`, and `delimiter` fields. The
// response body is the JSON verdict object.
func compareHandler(m *metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		log := logger.With(zap.String("component", "rvl-server"))

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

		settings, err := settingsFromForm(c)
		if err != nil {
			m.observe("bad_request", time.Since(start).Seconds())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		dir, err := os.MkdirTemp("", "rvl-compare-*")
		if err != nil {
			m.observe("error", time.Since(start).Seconds())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage uploads"})
			return
		}
		defer os.RemoveAll(dir)

		oldPath, err := saveUpload(c, "old", dir)
		if err != nil {
			m.observe("bad_request", time.Since(start).Seconds())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		newPath, err := saveUpload(c, "new", dir)
		if err != nil {
			m.observe("bad_request", time.Since(start).Seconds())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := pipeline.Run(pipeline.Request{
			OldPath:  oldPath,
			NewPath:  newPath,
			Settings: settings,
		})
		if err != nil {
			m.observe("bad_request", time.Since(start).Seconds())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		status := http.StatusOK
		outcome := "real_change"
		switch result.Outcome {
		case pipeline.NoRealChange:
			outcome = "no_real_change"
		case pipeline.Refused:
			outcome = "refusal"
			status = http.StatusUnprocessableEntity
		}
		m.observe(outcome, time.Since(start).Seconds())
		log.Info("compare served",
			zap.String("outcome", outcome),
			zap.Duration("duration", time.Since(start)))

		c.Data(status, "application/json", []byte(result.Output))
	}
}

// settingsFromForm builds run settings from the optional form fields. The
// server always asks the pipeline for JSON output.
func settingsFromForm(c *gin.Context) (config.Settings, error) {
	settings := config.NewSettings()
	settings.JSON = true

	if value := c.PostForm("threshold"); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return config.Settings{}, errors.New(errors.TypeValidation, "threshold must be a valid number")
		}
		settings.Threshold = parsed
	}
	if value := c.PostForm("tolerance"); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return config.Settings{}, errors.New(errors.TypeValidation, "tolerance must be a valid number")
		}
		settings.Tolerance = parsed
	}
	settings.Key = c.PostForm("key")

	if value := c.PostForm("delimiter"); value != "" {
		parsed, err := config.ParseDelimiter(value)
		if err != nil {
			return config.Settings{}, err
		}
		settings.Delimiter = parsed
		settings.HasDelimiter = true
	}

	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func saveUpload(c *gin.Context, field, dir string) (string, error) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		return "", errors.Newf(errors.TypeValidation, "missing %s file", field)
	}
	defer file.Close()

	path := filepath.Join(dir, field+uploadSuffix(header))
	out, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, errors.TypeFile, "failed to stage upload")
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return "", errors.Wrap(err, errors.TypeFile, "failed to stage upload")
	}
	return path, nil
}

// uploadSuffix keeps a .gz suffix so gzip inputs stay recognizable.
func uploadSuffix(header *multipart.FileHeader) string {
	if header != nil && strings.HasSuffix(header.Filename, ".gz") {
		return ".csv.gz"
	}
	return ".csv"
}

// decodeJSON is a test hook kept close to the handler that produces the
// payloads it decodes.
func decodeJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
