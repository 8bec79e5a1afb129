package client

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/gonzalop/drop/internal/ratelimit"
	"github.com/gonzalop/drop/transfer"
	"github.com/gonzalop/drop/wire"
)

// transfer runs the negotiate-then-stream sequence for get/put: send the
// control request, and on a 200 reply hand off to a fresh data connection;
// on a 500 reply just print it. Exactly one transfer runs at a time, per
// spec.md §4.6 — the interactive prompt blocks until it finishes.
func (s *Session) transfer(command, argument string) {
	if command == wire.CmdPut {
		if info, err := os.Stat(argument); err != nil || info.IsDir() {
			fmt.Fprintln(s.out, "No such file")
			return
		}
	}

	req := wire.Request{Command: command, Argument: &argument}
	if err := wire.Encode(s.conn, req); err != nil {
		s.logger.Warn("failed to send transfer request", zap.Error(err))
		return
	}

	var raw json.RawMessage
	if err := wire.Decode(s.conn, wire.ControlBufferSize, &raw); err != nil {
		s.logger.Warn("failed to read transfer response", zap.Error(err))
		return
	}

	var probe struct {
		StatusCode int `json:"status_code"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		s.logger.Warn("malformed transfer response", zap.Error(err))
		return
	}

	if probe.StatusCode == wire.StatusError {
		var resp wire.Response
		json.Unmarshal(raw, &resp)
		s.printResponse(resp)
		return
	}

	var grant wire.TransferGrant
	if err := json.Unmarshal(raw, &grant); err != nil {
		s.logger.Warn("malformed transfer grant", zap.Error(err))
		return
	}

	switch command {
	case wire.CmdGet:
		s.runGet(grant)
	case wire.CmdPut:
		s.runPut(grant, argument)
	}
}

func (s *Session) dialData(transferPort int) (*tls.Conn, error) {
	addr := net.JoinHostPort(s.host, strconv.Itoa(transferPort))
	return tls.Dial("tcp", addr, s.tlsConfig)
}

func (s *Session) runGet(grant wire.TransferGrant) {
	conn, err := s.dialData(grant.TransferPort)
	if err != nil {
		fmt.Fprintln(s.out, "failed to connect to data channel:", err)
		return
	}
	defer conn.Close()

	if err := wire.Encode(conn, grant); err != nil {
		fmt.Fprintln(s.out, "failed to start transfer:", err)
		return
	}

	filename := filepath.Base(grant.AbsolutePath)
	localPath := s.localResolve(filename)
	f, err := os.Create(localPath)
	if err != nil {
		fmt.Fprintln(s.out, "failed to create local file:", err)
		return
	}
	defer f.Close()

	var size int64
	if grant.Filesize != nil {
		size = *grant.Filesize
	}
	bar := progressbar.DefaultBytes(size, fmt.Sprintf("Receiving %s", filename))
	w := io.MultiWriter(f, bar)
	src := ratelimit.NewReader(conn, s.limiter)

	if _, err := transfer.CopyChunked(w, src); err != nil {
		fmt.Fprintln(s.out, "transfer failed:", err)
		return
	}

	if grant.SHA256Sum != "" {
		localSum, err := transfer.SHA256Path(localPath)
		if err != nil {
			s.logger.Warn("failed to verify downloaded checksum", zap.Error(err))
		} else if localSum != grant.SHA256Sum {
			fmt.Fprintln(s.out, "checksum mismatch, file may be corrupt")
			return
		}
	}
	fmt.Fprintln(s.out, "File successfully downloaded")
}

func (s *Session) runPut(grant wire.TransferGrant, filename string) {
	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintln(s.out, "No such file")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		fmt.Fprintln(s.out, "failed to stat local file:", err)
		return
	}

	sum, err := transfer.SHA256Path(filename)
	if err != nil {
		fmt.Fprintln(s.out, "failed to checksum local file:", err)
		return
	}

	conn, err := s.dialData(grant.TransferPort)
	if err != nil {
		fmt.Fprintln(s.out, "failed to connect to data channel:", err)
		return
	}
	defer conn.Close()

	init := grant
	init.SHA256Sum = sum
	if err := wire.Encode(conn, init); err != nil {
		fmt.Fprintln(s.out, "failed to start transfer:", err)
		return
	}
	if err := transfer.WaitReady(conn); err != nil {
		fmt.Fprintln(s.out, "server did not acknowledge the transfer:", err)
		return
	}

	bar := progressbar.DefaultBytes(info.Size(), fmt.Sprintf("Sending %s", filepath.Base(filename)))
	dst := ratelimit.NewWriter(conn, s.limiter)
	w := io.MultiWriter(dst, bar)

	if _, err := transfer.CopyChunked(w, f); err != nil {
		fmt.Fprintln(s.out, "transfer failed:", err)
		return
	}
	fmt.Fprintln(s.out, "File successfully uploaded")
}
