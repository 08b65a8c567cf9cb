// Package server exposes the registered tools over the Model Context
// Protocol, on stdio (default) or SSE transport.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/sanduku/internal/config"
	"github.com/jkaninda/sanduku/internal/observability"
	"github.com/jkaninda/sanduku/internal/tools"
)

const serverName = "sanduku"

// Server wires the tool registry into an MCP server.
type Server struct {
	mcpServer *server.MCPServer
	registry  *tools.Registry
	obs       *observability.Observability
	cfg       config.ServerConfig
	logger    *slog.Logger
	version   string
}

// New creates the MCP server and registers every tool in the registry.
func New(cfg config.ServerConfig, version string, registry *tools.Registry, obs *observability.Observability, logger *slog.Logger) (*Server, error) {
	mcpServer := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		registry:  registry,
		obs:       obs,
		cfg:       cfg,
		logger:    logger,
		version:   version,
	}

	for _, tool := range registry.List() {
		schema, err := json.Marshal(tool.InputSchema())
		if err != nil {
			return nil, fmt.Errorf("marshaling input schema for tool %s: %w", tool.Name(), err)
		}
		mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
		mcpServer.AddTool(mcpTool, s.handlerFor(tool))
		logger.Debug("registered tool", slog.String("tool", tool.Name()))
	}

	return s, nil
}

// handlerFor adapts a tools.Tool to an mcp-go handler. Invalid parameters
// and execution failures are reported as tool results, not protocol errors,
// so the caller sees the message instead of a dropped request.
func (s *Server) handlerFor(tool tools.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		if ts := s.obs.TracerOrNil(); ts != nil {
			var span trace.Span
			ctx, span = ts.Tracer().Start(ctx, "tool.call",
				trace.WithAttributes(attribute.String("tool.name", tool.Name())))
			defer span.End()
		}

		if metrics := s.obs.MetricsOrNil(); metrics != nil {
			metrics.ActiveRequests.Inc()
			defer metrics.ActiveRequests.Dec()
		}

		if err := tool.Validate(args); err != nil {
			s.logger.WarnContext(ctx, "tool validation failed",
				slog.String("tool", tool.Name()),
				slog.String("error", err.Error()),
			)
			s.obs.MetricsOrNil().RecordToolCall(tool.Name(), "invalid", 0)
			return mcp.NewToolResultError(err.Error()), nil
		}

		start := time.Now()
		result, err := tool.Execute(ctx, args)
		duration := time.Since(start)

		if err != nil {
			s.logger.ErrorContext(ctx, "tool execution failed",
				slog.String("tool", tool.Name()),
				slog.String("error", err.Error()),
				slog.Duration("duration", duration),
			)
			s.obs.MetricsOrNil().RecordToolCall(tool.Name(), "error", duration)
			if ts := s.obs.TracerOrNil(); ts != nil {
				span := trace.SpanFromContext(ctx)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return mcp.NewToolResultError(err.Error()), nil
		}

		s.logger.InfoContext(ctx, "tool executed",
			slog.String("tool", tool.Name()),
			slog.Duration("duration", duration),
		)
		s.obs.MetricsOrNil().RecordToolCall(tool.Name(), "success", duration)

		return mcp.NewToolResultText(result.Output), nil
	}
}

// Run serves MCP requests on the configured transport. Blocks until the
// transport shuts down. The observability HTTP endpoints, when enabled,
// are served on their own listener.
func (s *Server) Run(ctx context.Context, obsAddr string) error {
	if handler := s.obs.Handler(); handler != nil {
		go func() {
			s.logger.Info("observability endpoints listening", slog.String("addr", obsAddr))
			if err := http.ListenAndServe(obsAddr, handler); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("observability server failed", slog.String("error", err.Error()))
			}
		}()
	}

	switch s.cfg.TransportName() {
	case "sse":
		addr := s.cfg.SSEAddress()
		s.logger.Info("starting MCP server",
			slog.String("transport", "sse"),
			slog.String("addr", addr),
			slog.String("version", s.version),
		)
		sseServer := server.NewSSEServer(s.mcpServer)
		if err := sseServer.Start(addr); err != nil {
			return fmt.Errorf("SSE server: %w", err)
		}
		return nil
	default:
		s.logger.Info("starting MCP server",
			slog.String("transport", "stdio"),
			slog.String("version", s.version),
		)
		if err := server.ServeStdio(s.mcpServer); err != nil {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil
	}
}
