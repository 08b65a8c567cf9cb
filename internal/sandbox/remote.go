package sandbox

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPrompt        = "$ "
	defaultSettleDelay   = 100 * time.Millisecond
	defaultDialTimeout   = 5 * time.Second
	defaultScreenLogPath = "/tmp/sanduku_screen.log"
	promptDrainTimeout   = 1 * time.Second
	screenPrefix         = "mcp_"
	syncMarkerPrefix     = "__SANDUKU_"
)

// ErrNotConfigured reports that no remote sandbox location was supplied.
// This is a configuration error, distinct from a connect failure.
var ErrNotConfigured = errors.New("remote sandbox location not configured (set SANDBOX or sandbox.remote.address)")

// ErrScriptNotSupported reports a request that asks the remote shell to
// stage a script. There is no file transfer on the wire protocol; script
// execution belongs to the process or docker backends.
var ErrScriptNotSupported = errors.New("remote shell sandbox cannot stage scripts")

// RemoteConfig configures the remote persistent-shell sandbox.
type RemoteConfig struct {
	Address        string        // host:port for TCP. Mutually exclusive with SocketPath.
	SocketPath     string        // Unix socket path. Takes precedence over Address.
	Prompt         string        // Shell prompt marker. Empty = "$ ".
	DefaultTimeout time.Duration // Per-command read timeout. Zero = 5s.
	DialTimeout    time.Duration // Connect timeout. Zero = 5s.
	SettleDelay    time.Duration // Wait before a screen hardcopy. Zero = 100ms.
	ScreenLogPath  string        // Remote path for screen hardcopy output.
}

// RemoteShellSandbox executes commands on a pre-provisioned remote shell
// reached over TCP or a Unix socket. The remote environment provides its own
// isolation; this side owns only the wire protocol.
//
// The protocol is newline-terminated text framed by a literal prompt marker.
// Prompt framing cannot disambiguate interleaved commands, so a connection
// is never shared between in-flight commands — Execute dials per call.
type RemoteShellSandbox struct {
	config RemoteConfig
	logger *slog.Logger
}

// NewRemoteShellSandbox creates a remote shell sandbox. Fails immediately
// with ErrNotConfigured when no sandbox location is configured.
func NewRemoteShellSandbox(cfg RemoteConfig, logger *slog.Logger) (*RemoteShellSandbox, error) {
	if cfg.Address == "" && cfg.SocketPath == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Prompt == "" {
		cfg.Prompt = defaultPrompt
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.ScreenLogPath == "" {
		cfg.ScreenLogPath = defaultScreenLogPath
	}
	return &RemoteShellSandbox{config: cfg, logger: logger}, nil
}

// Execute dials the remote shell and runs the request's command line.
// Command elements are joined into a single shell command string.
func (s *RemoteShellSandbox) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	if len(req.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if req.Script != "" {
		// Silently dropping the script would run a bare interpreter instead
		// of the untrusted code. Refuse loudly.
		return nil, ErrScriptNotSupported
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = s.config.DefaultTimeout
	}

	conn, err := s.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return conn.RunCommand(ctx, strings.Join(req.Command, " "), timeout, req.ScreenSession)
}

// Dial opens a fresh connection to the remote shell.
func (s *RemoteShellSandbox) Dial(ctx context.Context) (*ShellConnection, error) {
	network, addr := "tcp", s.config.Address
	if s.config.SocketPath != "" {
		network, addr = "unix", s.config.SocketPath
	}

	dialer := net.Dialer{Timeout: s.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to sandbox shell at %s: %w", addr, err)
	}

	return &ShellConnection{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		prompt:    s.config.Prompt,
		settle:    s.config.SettleDelay,
		screenLog: s.config.ScreenLogPath,
		logger:    s.logger,
	}, nil
}

// ShellConnection manages one duplex text stream to the remote shell.
// Not safe for concurrent use: the prompt-framing protocol has no request
// multiplexing, so callers must serialize commands on a connection.
type ShellConnection struct {
	conn      net.Conn
	reader    *bufio.Reader
	prompt    string
	settle    time.Duration
	screenLog string
	logger    *slog.Logger
}

// Close tears down the connection. Screen sessions on the remote shell
// survive — their lifecycle belongs to the remote side.
func (c *ShellConnection) Close() error {
	return c.conn.Close()
}

// RunCommand executes one command and returns its captured output.
//
// Without a screen session the command is written as a single line and
// output is read until a synchronization marker. With a screen session the
// command is injected into a named, persistent screen session; after a
// settle delay the session's visible buffer is snapshotted to the remote
// log path and read back as the command's output (best effort — the settle
// delay is an acknowledged race).
//
// A timeout yields a result with TimedOut set, exit code 1, and whatever
// partial output was buffered. It is never reported as an error.
func (c *ShellConnection) RunCommand(ctx context.Context, command string, timeout time.Duration, screen string) (*ExecutionResult, error) {
	start := time.Now()

	// Cancellation from the caller's context interrupts any blocked read.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	// Swallow any banner or pending prompt so framing starts clean.
	c.drainPrompt()

	if screen != "" {
		if err := c.dispatchScreen(ctx, command, screen); err != nil {
			return nil, err
		}
		// The hardcopy log is the command's visible output.
		command = "cat " + shellQuote(c.screenLog)
	}

	if err := c.writeLine(command); err != nil {
		return nil, fmt.Errorf("writing command: %w", err)
	}

	// Synchronization marker: echoed back with the command's exit status.
	// Detects prompt-framing desync and captures the exit code in one round
	// trip. A non-numeric or missing status parses as exit code 1.
	nonce := newNonce()
	if err := c.writeLine("echo " + syncMarkerPrefix + nonce + "_$?"); err != nil {
		return nil, fmt.Errorf("writing sync marker: %w", err)
	}

	stdout, exitCode, err := c.readUntilMarker(nonce, timeout)
	duration := time.Since(start)

	if err != nil {
		if isTimeout(err) || ctx.Err() != nil {
			c.logger.Warn("remote command timed out",
				slog.Duration("timeout", timeout),
				slog.Bool("screen", screen != ""),
			)
			return &ExecutionResult{
				Stdout:   stdout,
				Stderr:   "Command timed out",
				ExitCode: 1,
				TimedOut: true,
				Duration: duration,
			}, nil
		}
		return nil, fmt.Errorf("reading command output: %w", err)
	}

	c.logger.Info("remote command completed",
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", duration),
		slog.Bool("screen", screen != ""),
	)

	return &ExecutionResult{
		Stdout:   stdout,
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// dispatchScreen injects a command into a named screen session: create or
// reattach, stuff the command plus newline, wait for output to settle,
// snapshot the visible buffer to the log path, detach.
func (c *ShellConnection) dispatchScreen(ctx context.Context, command, session string) error {
	q := shellQuote(session)
	// The stuffed text needs a trailing newline so screen's shell runs it.
	// A quoted newline spans two wire lines; the remote shell joins them
	// via quote continuation.
	steps := []string{
		"screen -dmS " + q + " 2>/dev/null || screen -S " + q + " -X stuff '\n'",
		"screen -S " + q + " -X stuff " + shellQuote(command+"\n"),
	}
	for _, step := range steps {
		if err := c.writeLine(step); err != nil {
			return fmt.Errorf("dispatching to screen session %s: %w", session, err)
		}
	}

	// Fixed settle delay before the snapshot; output produced after this
	// window is picked up by the next hardcopy.
	select {
	case <-time.After(c.settle):
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, step := range []string{
		"screen -S " + q + " -X hardcopy " + shellQuote(c.screenLog),
		"screen -S " + q + " -X detach 2>/dev/null",
	} {
		if err := c.writeLine(step); err != nil {
			return fmt.Errorf("snapshotting screen session %s: %w", session, err)
		}
	}
	return nil
}

// writeLine sends one newline-terminated command.
func (c *ShellConnection) writeLine(line string) error {
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

// drainPrompt consumes any banner until the prompt is seen or a short
// deadline passes. The prompt has no trailing newline, so it is matched on
// the byte stream rather than waiting for a full line. Best effort: a
// silent remote just costs the deadline.
func (c *ShellConnection) drainPrompt() {
	_ = c.conn.SetReadDeadline(time.Now().Add(promptDrainTimeout))
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	window := make([]byte, 0, len(c.prompt))
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return
		}
		window = append(window, b)
		if len(window) > len(c.prompt) {
			window = window[1:]
		}
		if string(window) == c.prompt {
			return
		}
	}
}

// readUntilMarker collects output lines until the sync marker for nonce
// appears, returning the collected stdout and the parsed exit code.
// Prompt-marker lines are framing noise, not output, and are skipped.
// On timeout the partial stdout is returned along with the error.
func (c *ShellConnection) readUntilMarker(nonce string, timeout time.Duration) (string, int, error) {
	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}

	marker := syncMarkerPrefix + nonce + "_"
	var buf strings.Builder

	for {
		line, err := c.reader.ReadString('\n')

		switch idx := strings.Index(line, marker); {
		case idx >= 0 && strings.Contains(line[:idx], "echo "):
			// A pty-backed remote echoes the sync command itself, with $?
			// still unexpanded. Input echo is framing noise, not the marker.
		case idx >= 0:
			status := strings.TrimSpace(line[idx+len(marker):])
			code, convErr := strconv.Atoi(status)
			if convErr != nil {
				// Unknown or mangled status — treat as failed.
				code = 1
			}
			return buf.String(), code, nil
		case line != "" && !strings.HasPrefix(line, c.prompt):
			buf.WriteString(line)
		}

		if err != nil {
			return buf.String(), 1, err
		}
	}
}

// GenerateScreenSession returns a fresh screen session name.
func GenerateScreenSession() string {
	return screenPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// newNonce returns a random hex token for sync-marker framing.
func newNonce() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Degrade to a time-derived token; uniqueness per connection is
		// all the framing needs.
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}

// isTimeout reports whether err is a read-deadline expiry.
func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// shellQuote wraps s in single quotes when it contains characters the
// remote shell would interpret.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.' || r == '/' || r == ':' || r == '=') {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
