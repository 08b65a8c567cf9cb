package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goutils "github.com/jkaninda/go-utils"
	"github.com/spf13/cobra"

	"github.com/jkaninda/sanduku/internal/config"
	"github.com/jkaninda/sanduku/internal/observability"
	"github.com/jkaninda/sanduku/internal/sandbox"
	"github.com/jkaninda/sanduku/internal/server"
	"github.com/jkaninda/sanduku/internal/startup"
	"github.com/jkaninda/sanduku/internal/tools"
	"github.com/jkaninda/sanduku/internal/tools/python"
	"github.com/jkaninda/sanduku/internal/tools/shell"
	"github.com/jkaninda/sanduku/internal/tools/web"
)

var (
	serveConfigPath string
	serveDebug      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server (stdio or SSE transport)",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `sanduku --config path` and `sanduku serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().BoolVar(&serveDebug, "debug", false, "enable debug logging")
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if serveDebug {
		level = slog.LevelDebug
	}
	// stdout carries the MCP protocol — all logging goes to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	cfg, err := loadConfig(goutils.Env("SANDUKU_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := startup.Provision(ctx, cfg.Git, logger); err != nil {
		return err
	}

	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return fmt.Errorf("initializing observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	}()

	shellSbx, execSbx, err := buildSandboxes(cfg, obs, logger)
	if err != nil {
		return fmt.Errorf("initializing sandbox: %w", err)
	}

	registry := buildRegistry(cfg, shellSbx, execSbx, logger)

	srv, err := server.New(cfg.Server, version, registry, obs, logger)
	if err != nil {
		return fmt.Errorf("initializing server: %w", err)
	}

	return srv.Run(ctx, cfg.Observability.ListenAddr())
}

// loadConfig reads the config file when it exists, and falls back to
// env-driven defaults otherwise. MCP clients commonly launch the server
// with nothing but environment variables.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildSandboxes constructs the execution backends, wrapped with
// observability when enabled. The shell backend follows the configured mode;
// the exec backend always supports script staging, so in remote mode it is a
// local process sandbox (the remote shell transport cannot carry a script).
func buildSandboxes(cfg *config.Config, obs *observability.Observability, logger *slog.Logger) (shellSbx, execSbx sandbox.Sandbox, err error) {
	mode := cfg.Sandbox.BackendMode()

	switch mode {
	case "remote":
		remoteCfg := sandbox.RemoteConfig{}
		if rc := cfg.Sandbox.Remote; rc != nil {
			remoteCfg = sandbox.RemoteConfig{
				Address:       rc.Address,
				SocketPath:    rc.SocketPath,
				Prompt:        rc.Prompt,
				DialTimeout:   time.Duration(rc.DialTimeoutS) * time.Second,
				SettleDelay:   time.Duration(rc.SettleMS) * time.Millisecond,
				ScreenLogPath: rc.ScreenLog,
			}
		}
		remote, rerr := sandbox.NewRemoteShellSandbox(remoteCfg, logger)
		if rerr != nil {
			return nil, nil, rerr
		}
		if obs != nil && obs.Health != nil {
			obs.Health.AddCheck("remote_shell", func(ctx context.Context) error {
				conn, derr := remote.Dial(ctx)
				if derr != nil {
					return derr
				}
				return conn.Close()
			})
		}
		shellSbx = remote
		execSbx, err = buildProcessSandbox(cfg, logger)
		if err != nil {
			return nil, nil, err
		}

	case "docker":
		dc := cfg.Sandbox.Docker
		shellSbx = sandbox.NewDockerSandbox(sandbox.DockerConfig{
			Image:          dc.Image,
			DefaultTimeout: time.Duration(dc.DefaultTimeoutS) * time.Second,
			MemoryMB:       dc.MaxMemoryMB,
			PIDsLimit:      dc.MaxProcesses,
			NetworkAllowed: dc.Network != "" && dc.Network != "none",
		}, logger)
		execSbx = shellSbx

	default: // process
		shellSbx, err = buildProcessSandbox(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		execSbx = shellSbx
	}

	logger.Info("sandbox initialized", slog.String("mode", mode))

	if obs != nil {
		instrumented := observability.NewInstrumentedSandbox(shellSbx, mode, obs.MetricsOrNil(), obs.TracerOrNil())
		if execSbx == shellSbx {
			execSbx = instrumented
		} else {
			execSbx = observability.NewInstrumentedSandbox(execSbx, "process", obs.MetricsOrNil(), obs.TracerOrNil())
		}
		shellSbx = instrumented
	}
	return shellSbx, execSbx, nil
}

func buildProcessSandbox(cfg *config.Config, logger *slog.Logger) (sandbox.Sandbox, error) {
	pc := cfg.Sandbox.Process
	return sandbox.NewProcessSandbox(sandbox.ProcessConfig{
		DefaultTimeout: time.Duration(pc.DefaultTimeoutS) * time.Second,
		DefaultLimits: sandbox.ResourceLimits{
			MaxMemoryMB:   pc.MaxMemoryMB,
			MaxCPUSeconds: pc.MaxCPUSeconds,
			MaxProcesses:  pc.MaxProcesses,
			MaxFileSizeMB: pc.MaxFileSizeMB,
		},
		Isolation:  sandbox.IsolationMode(pc.Isolation),
		Shell:      pc.Shell,
		AllowedEnv: pc.AllowedEnv,
	}, logger)
}

// buildRegistry registers every tool the server exposes. Script-staging tools
// (python) run on execSbx; the shell tool runs on shellSbx.
func buildRegistry(cfg *config.Config, shellSbx, execSbx sandbox.Sandbox, logger *slog.Logger) *tools.Registry {
	registry := tools.NewRegistry()

	registry.Register(python.NewTool(python.Config{
		Interpreter:    orDefault(cfg.Tools.Python.Interpreter, "python3"),
		Linter:         orDefault(cfg.Tools.Python.Linter, "ruff"),
		TimeoutSeconds: cfg.Tools.Python.TimeoutSeconds,
	}, execSbx, logger))

	registry.Register(shell.NewTool(shellSbx, logger))

	fetcher := web.NewFetcher(web.Config{
		UserAgent:        cfg.Tools.Web.UserAgent,
		MaxResponseBytes: cfg.Tools.Web.MaxResponseBytes,
		TimeoutSeconds:   cfg.Tools.Web.TimeoutSeconds,
		AllowedDomains:   cfg.Tools.Web.AllowedDomains,
	}, logger)
	registry.Register(web.NewFetchTool(fetcher, logger))
	registry.Register(web.NewLinksTool(fetcher, logger))
	registry.Register(web.NewSearchTool(cfg.Tools.Web.SearxngURL, fetcher, logger))

	return registry
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
