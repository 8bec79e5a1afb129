package server

import (
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/gonzalop/drop/wire"
)

// noArgCommands and argCommands implement the two explicit dispatch tables
// called for in the spec's design notes, rather than one dynamic map of
// bound methods: ls belongs to both, since its argument is optional.
var noArgCommands = map[string]bool{
	wire.CmdPwd: true,
	wire.CmdLs:  true,
}

var argCommands = map[string]bool{
	wire.CmdLs:    true,
	wire.CmdCd:    true,
	wire.CmdMkdir: true,
	wire.CmdGet:   true,
	wire.CmdPut:   true,
}

// controlSession owns one accepted control connection. Its cwd field is the
// session-local substitute for the original Python server's process-wide chdir — every
// path operation resolves against it, never against the process's actual
// working directory.
type controlSession struct {
	server *Server
	conn   net.Conn
	cwd    string
}

// serveControl runs the control protocol (C3/C4) to completion: Ready ->
// Dispatch -> Ready until the client disconnects or sends something that
// can't be recovered from.
func (s *Server) serveControl(conn net.Conn) {
	defer conn.Close()

	home := s.initialDir
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			home = string(os.PathSeparator)
		}
	}

	cs := &controlSession{server: s, conn: conn, cwd: home}
	cs.run()
}

func (cs *controlSession) run() {
	logger := cs.server.logger.With(zap.String("remote", cs.conn.RemoteAddr().String()))

	for {
		var req wire.Request
		err := wire.Decode(cs.conn, wire.ControlBufferSize, &req)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			logger.Debug("malformed control frame", zap.Error(err))
			if encErr := wire.Encode(cs.conn, wire.Err("Invalid command format, it doesn't respect the protocol")); encErr != nil {
				logger.Warn("failed to write control response", zap.Error(encErr))
				return
			}
			continue
		}

		resp := cs.dispatch(req)
		logger.Debug("control command", zap.String("command", req.Command), zap.String("argument", req.Arg()))

		if err := wire.Encode(cs.conn, resp); err != nil {
			logger.Warn("failed to write control response", zap.Error(err))
			return
		}
	}
}

// dispatch applies the arity rules from the spec's command table and routes
// to the matching handler. It returns either a wire.Response or a
// wire.TransferGrant; both marshal to a self-contained JSON object, so the
// caller just encodes whichever comes back.
func (cs *controlSession) dispatch(req wire.Request) any {
	cmd := req.Command
	arg := req.Argument

	switch {
	case noArgCommands[cmd] && arg == nil:
		return cs.runNoArg(cmd)
	case argCommands[cmd] && arg != nil && *arg != "":
		return cs.runArg(cmd, *arg)
	default:
		return wire.Err("Invalid command or argument(s)")
	}
}

func (cs *controlSession) runNoArg(cmd string) any {
	switch cmd {
	case wire.CmdPwd:
		return cs.handlePwd()
	case wire.CmdLs:
		return cs.handleLs(cs.cwd)
	default:
		return wire.Err("Invalid command or argument(s)")
	}
}

func (cs *controlSession) runArg(cmd, arg string) any {
	switch cmd {
	case wire.CmdLs:
		return cs.handleLs(cs.resolve(arg))
	case wire.CmdCd:
		return cs.handleCd(arg)
	case wire.CmdMkdir:
		return cs.handleMkdir(arg)
	case wire.CmdGet:
		return cs.negotiateGet(arg)
	case wire.CmdPut:
		return cs.negotiatePut(arg)
	default:
		return wire.Err("Invalid command or argument(s)")
	}
}

// resolve joins a possibly-relative argument against the session's current
// directory, leaving absolute arguments untouched.
func (cs *controlSession) resolve(arg string) string {
	if filepath.IsAbs(arg) {
		return arg
	}
	return filepath.Join(cs.cwd, arg)
}

func (cs *controlSession) handlePwd() wire.Response {
	return wire.OK(wire.StrPtr(cs.cwd))
}

func (cs *controlSession) handleLs(dir string) wire.Response {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return wire.Err("No such directory")
	}
	if len(entries) == 0 {
		return wire.OK(nil)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	joined := strings.Join(names, "\n")
	return wire.OK(&joined)
}

func (cs *controlSession) handleCd(arg string) wire.Response {
	path := cs.resolve(arg)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return wire.Err("No such directory")
	}
	cs.cwd = path
	return wire.OK(nil)
}

func (cs *controlSession) handleMkdir(arg string) wire.Response {
	path := cs.resolve(arg)
	if err := os.Mkdir(path, 0o755); err != nil {
		return wire.Err("Directory already exists")
	}
	return wire.OK(nil)
}
