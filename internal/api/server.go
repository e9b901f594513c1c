// Package api exposes fused attention config derivation over HTTP.
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/fmha/internal/backend/host"
	"github.com/samcharles93/fmha/internal/descfile"
	"github.com/samcharles93/fmha/internal/fmha"
	"github.com/samcharles93/fmha/internal/logger"
)

const maxBodyBytes = 1 << 20

type Server struct {
	store   *ConfigStore
	log     logger.Logger
	backend string
	workers int
	now     func() time.Time
}

type Options struct {
	Backend string
	Workers int
	Logger  logger.Logger
}

func NewServer(store *ConfigStore, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		store:   store,
		log:     log,
		backend: opts.Backend,
		workers: opts.Workers,
		now:     time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/kinds", s.handleListKinds)
	e.GET("/v1/device", s.handleDevice)
	e.POST("/v1/configs", s.handleCreateConfig)
	e.GET("/v1/configs", s.handleListConfigs)
	e.GET("/v1/configs/:id", s.handleGetConfig)
	e.DELETE("/v1/configs/:id", s.handleDeleteConfig)
}

func (s *Server) handleListKinds(c *echo.Context) error {
	kinds := fmha.Kinds()
	data := make([]KindInfo, 0, len(kinds))
	for _, k := range kinds {
		req := k.Requirements()
		data = append(data, KindInfo{
			Name:    k.String(),
			Family:  k.Family().String(),
			Scale:   req.Scale,
			Mask:    req.Mask,
			Bias:    req.Bias,
			Dropout: req.Dropout,
		})
	}
	return c.JSON(http.StatusOK, KindsResponse{Object: "list", Data: data})
}

func (s *Server) handleDevice(c *echo.Context) error {
	return c.JSON(http.StatusOK, DeviceResponse{Backend: s.backend, Host: host.Describe(s.workers)})
}

// handleCreateConfig accepts a descriptor document as JSON, or as YAML when
// the content type says so.
func (s *Server) handleCreateConfig(c *echo.Context) error {
	data, err := readBody(c.Request().Body)
	if err != nil {
		return writeAPIError(c, err)
	}
	format := descfile.FormatJSON
	if ct := c.Request().Header.Get(echo.HeaderContentType); strings.Contains(ct, "yaml") {
		format = descfile.FormatYAML
	}
	desc, err := descfile.Decode(data, format)
	if err != nil {
		return writeAPIError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	cfg, err := fmha.ConfigFor(desc)
	if err != nil {
		return writeAPIError(c, err)
	}
	rec := s.store.Put(cfg, s.now())
	s.log.Info("config derived", "id", rec.ID, "kind", cfg.Kind.String())
	return c.JSON(http.StatusOK, configResponse(rec))
}

func (s *Server) handleListConfigs(c *echo.Context) error {
	recs := s.store.List()
	data := make([]ConfigResponse, 0, len(recs))
	for _, rec := range recs {
		data = append(data, configResponse(rec))
	}
	return c.JSON(http.StatusOK, ConfigListResponse{Object: "list", Data: data})
}

func (s *Server) handleGetConfig(c *echo.Context) error {
	id := c.Param("id")
	rec, ok := s.store.Get(id)
	if !ok {
		return writeAPIError(c, configNotFound(id))
	}
	return c.JSON(http.StatusOK, configResponse(rec))
}

func (s *Server) handleDeleteConfig(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeAPIError(c, configNotFound(id))
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "object": "config.deleted", "deleted": true})
}

func configNotFound(id string) error {
	return fmt.Errorf("%w: config %q", ErrNotFound, id)
}

func configResponse(rec *configRecord) ConfigResponse {
	return ConfigResponse{
		ID:         rec.ID,
		Object:     "config",
		CreatedAt:  rec.CreatedAt.Unix(),
		Summary:    descfile.Summarize(rec.Config),
		Diagnostic: rec.Config.String(),
	}
}
