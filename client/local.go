package client

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// runLocal dispatches the commands that never touch the network: lpwd, lls,
// lcd, lmkdir, clear, help, exit. It reports whether it recognized the
// command at all (an unrecognized command or one called with the wrong
// arity both fall through to "command not recognized").
func (s *Session) runLocal(command, argument string, hasArgument bool) bool {
	switch {
	case command == "lpwd" && !hasArgument:
		fmt.Fprintln(s.out, s.localCwd)
	case command == "lls":
		s.localLs(argument, hasArgument)
	case command == "lcd" && hasArgument:
		s.localCd(argument)
	case command == "lmkdir" && hasArgument:
		s.localMkdir(argument)
	case command == "clear" && !hasArgument:
		fmt.Fprint(s.out, "\033[2J\033[H")
	case command == "help" && !hasArgument:
		s.showHelp()
	case command == "exit" && !hasArgument:
		s.disconnect()
	default:
		return false
	}
	return true
}

func (s *Session) localResolve(arg string) string {
	if filepath.IsAbs(arg) {
		return arg
	}
	return filepath.Join(s.localCwd, arg)
}

func (s *Session) localLs(argument string, hasArgument bool) {
	dir := s.localCwd
	if hasArgument {
		dir = s.localResolve(argument)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(s.out, "No such directory")
		return
	}
	if len(entries) == 0 {
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(s.out, n)
	}
}

func (s *Session) localCd(argument string) {
	path := s.localResolve(argument)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		fmt.Fprintln(s.out, "No such directory")
		return
	}
	s.localCwd = path
}

func (s *Session) localMkdir(argument string) {
	path := s.localResolve(argument)
	if err := os.Mkdir(path, 0o755); err != nil {
		fmt.Fprintln(s.out, "Directory already exists")
	}
}

func (s *Session) disconnect() {
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("error closing control connection", zap.Error(err))
	}
	fmt.Fprintln(s.out, "Disconnected from file-server")
	os.Exit(0)
}
