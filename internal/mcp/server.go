// Package mcp exposes the validation engine as Model Context Protocol tools and
// resources.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/clinical-fact-validator/internal/service"
)

// Version is the MCP server version.
const Version = "1.0.0"

// ErrMissingService is returned when no validation service is provided.
var ErrMissingService = errors.New("mcp: validation service is required")

// Server is the MCP server of the validation engine.
type Server struct {
	service *service.ValidationService
	server  *mcp.Server
	logger  *logrus.Logger
}

// NewServer creates an MCP server backed by the validation service. An empty name
// falls back to the default implementation name.
func NewServer(svc *service.ValidationService, name string, logger *logrus.Logger) (*Server, error) {
	if svc == nil {
		return nil, ErrMissingService
	}
	if name == "" {
		name = "clinical-fact-validator"
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &Server{
		service: svc,
		server:  mcp.NewServer(&mcp.Implementation{Name: name, Version: Version}, nil),
		logger:  logger,
	}

	s.registerTools()
	s.registerResources()

	logger.WithFields(logrus.Fields{
		"name":    name,
		"version": Version,
	}).Info("MCP server initialized")
	return s, nil
}

// Run serves MCP over stdio until the context is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Serving MCP over stdio")
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

// Handler returns the streamable HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// RunHTTP serves MCP over streamable HTTP on addr until the context is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("MCP HTTP shutdown failed")
		}
	}()

	s.logger.WithField("addr", addr).Info("Serving MCP over HTTP")
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
