// Package client implements the interactive session (C7): one persistent
// control connection, local/remote/transfer command classification, and the
// data-channel handoff for get/put.
package client

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/gonzalop/drop/internal/ratelimit"
	"github.com/gonzalop/drop/wire"
)

var (
	okColor     = color.New(color.FgHiGreen)
	errColor    = color.New(color.Bold, color.FgRed)
	promptColor = color.New(color.Bold, color.FgHiCyan)
)

// remoteCommands are forwarded verbatim over the control connection.
var remoteCommands = map[string]bool{
	wire.CmdPwd:   true,
	wire.CmdCd:    true,
	wire.CmdLs:    true,
	wire.CmdMkdir: true,
}

// transferCommands negotiate over control, then hand off to a fresh data
// connection.
var transferCommands = map[string]bool{
	wire.CmdGet: true,
	wire.CmdPut: true,
}

// Session owns the persistent control connection and the client-local
// working directory used by lpwd/lcd/lls/lmkdir.
type Session struct {
	conn      net.Conn
	host      string
	tlsConfig *tls.Config
	logger    *zap.Logger
	out       io.Writer
	localCwd  string
	limiter   *ratelimit.Limiter
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithLogger sets the session's structured logger. Defaults to a no-op
// logger: the interactive client's real output channel is the terminal, not
// a log stream.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithOutput overrides the writer used for user-facing output. Defaults to
// os.Stdout; tests substitute a buffer.
func WithOutput(w io.Writer) Option {
	return func(s *Session) { s.out = w }
}

// WithBandwidthLimit caps get/put throughput at bytesPerSecond on the
// client side, mirroring server.WithBandwidthLimit.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Session) { s.limiter = ratelimit.New(bytesPerSecond) }
}

// Dial opens the control connection to addr ("host:port") over TLS and
// returns a ready-to-run Session. The host half of addr is reused later to
// dial the data channel on whatever transfer_port a grant names.
func Dial(addr string, tlsConfig *tls.Config, opts ...Option) (*Session, error) {
	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("client: connect to %s: %w", addr, err)
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: parse address %s: %w", addr, err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	s := &Session{
		conn:      conn,
		host:      host,
		tlsConfig: tlsConfig,
		logger:    zap.NewNop(),
		out:       os.Stdout,
		localCwd:  cwd,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the control connection.
func (s *Session) Close() error { return s.conn.Close() }

// RunREPL reads commands from in until the user disconnects or exits. It
// never returns an error on a clean exit command; that path calls os.Exit
// itself, matching the source client's disconnect() behavior.
func (s *Session) RunREPL(in io.Reader, prompt string) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, promptColor.Sprint(prompt))
		if !scanner.Scan() {
			return scanner.Err()
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		command := fields[0]
		var argument string
		hasArgument := len(fields) >= 2
		if hasArgument {
			argument = strings.Join(fields[1:], " ")
		}

		s.dispatch(command, argument, hasArgument)
	}
}

func (s *Session) dispatch(command, argument string, hasArgument bool) {
	switch {
	case remoteCommands[command]:
		s.sendRemote(command, argument, hasArgument)
	case transferCommands[command] && hasArgument:
		s.transfer(command, argument)
	default:
		if handled := s.runLocal(command, argument, hasArgument); handled {
			return
		}
		fmt.Fprintln(s.out, "Command not recognized. Use 'help' to show available commands")
	}
}

// sendRemote forwards command/argument over the control connection and
// prints the plain Response it gets back.
func (s *Session) sendRemote(command, argument string, hasArgument bool) {
	req := wire.Request{Command: command}
	if hasArgument {
		req.Argument = &argument
	}

	if err := wire.Encode(s.conn, req); err != nil {
		s.logger.Warn("failed to send control request", zap.Error(err))
		return
	}

	var resp wire.Response
	if err := wire.Decode(s.conn, wire.ControlBufferSize, &resp); err != nil {
		s.logger.Warn("failed to read control response", zap.Error(err))
		return
	}
	s.printResponse(resp)
}

func (s *Session) printResponse(resp wire.Response) {
	line := fmt.Sprintf("%d: %s", resp.StatusCode, resp.StatusMessage)
	if resp.StatusCode == wire.StatusOK {
		fmt.Fprintln(s.out, okColor.Sprint(line))
	} else {
		fmt.Fprintln(s.out, errColor.Sprint(line))
	}
	if resp.Content != nil {
		fmt.Fprintln(s.out, *resp.Content)
	}
}

// helpText mirrors the source client's command table, local and remote.
var helpText = []struct{ usage, desc string }{
	{"help", "show this message"},
	{"pwd", "show server's current working directory (remote)"},
	{"lpwd", "show your current working directory (local)"},
	{"ls     <route>", "list files and directories (remote)"},
	{"lls    <route>", "list files and directories (local)"},
	{"cd     [route]", "change server's current working directory (remote)"},
	{"lcd    [route]", "change your current working directory (local)"},
	{"get    [filename]", "download [filename] from the server (remote)"},
	{"put    [filename]", "upload [filename] to the server (remote)"},
	{"lmkdir [dirname]", "create a directory (local)"},
	{"mkdir  [dirname]", "create a directory (remote)"},
	{"exit", "close the connection and leave the program"},
}

func (s *Session) showHelp() {
	fmt.Fprintln(s.out, "\nUSAGE")
	fmt.Fprintln(s.out, "$ command")
	fmt.Fprintln(s.out, "$ command [mandatory_arg]")
	fmt.Fprintln(s.out, "$ command <optional_arg>")
	fmt.Fprintln(s.out, "\nCOMMANDS")
	for _, c := range helpText {
		fmt.Fprintf(s.out, "%-25s%-50s\n", c.usage, c.desc)
	}
	fmt.Fprintln(s.out)
}

// Prompt formats the interactive prompt for the given server address, in
// the source client's "file-server@host$ " style.
func Prompt(addr string) string {
	return fmt.Sprintf("file-server@%s$ ", addr)
}
