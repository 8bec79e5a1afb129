package server

import (
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/gonzalop/drop/transfer"
	"github.com/gonzalop/drop/wire"
)

// serveData runs one data-channel transfer end to end (C5/C6). Every exit
// path from here is a plain socket close: the data channel never sends an
// error frame, per spec.md §7.
func (s *Server) serveData(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(wire.TransfersTimeout)); err != nil {
		s.logger.Warn("data: failed to set initiation deadline", zap.Error(err))
		return
	}

	var init wire.TransferInit
	if err := wire.Decode(conn, wire.InitBufferSize, &init); err != nil {
		s.logger.Debug("data connection closed: invalid or absent initiation", zap.Error(err))
		return
	}

	if !s.tok.Equal(init.Token) {
		s.logger.Warn("data connection closed: token mismatch", zap.String("remote", conn.RemoteAddr().String()))
		return
	}

	stream := transfer.New(s.logger, s.limiter)

	switch init.Operation {
	case wire.OpGet:
		s.serveGet(conn, init, stream)
	case wire.OpPut:
		s.servePut(conn, init, stream)
	default:
		s.logger.Warn("data connection closed: unrecognized operation", zap.String("operation", string(init.Operation)))
	}
}

func (s *Server) serveGet(conn net.Conn, init wire.TransferInit, stream *transfer.Stream) {
	file, err := os.Open(init.AbsolutePath)
	if err != nil {
		s.logger.Warn("get: failed to open file", zap.String("path", init.AbsolutePath), zap.Error(err))
		return
	}
	defer file.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(wire.TransfersTimeout)); err != nil {
		s.logger.Warn("get: failed to set write deadline", zap.Error(err))
		return
	}

	if _, err := stream.SendFile(conn, file); err != nil {
		s.logger.Warn("get: transfer aborted", zap.String("path", init.AbsolutePath), zap.Error(err))
	}
}

// servePut opens the destination exclusively, right before sending the
// READY flag — negotiatePut already checked for existence, but O_EXCL
// closes the race between that check and this open.
func (s *Server) servePut(conn net.Conn, init wire.TransferInit, stream *transfer.Stream) {
	file, err := os.OpenFile(init.AbsolutePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		s.logger.Warn("put: failed to open destination", zap.String("path", init.AbsolutePath), zap.Error(err))
		return
	}

	if err := transfer.SendReady(conn); err != nil {
		file.Close()
		s.logger.Warn("put: failed to send ready flag", zap.Error(err))
		return
	}

	if err := conn.SetReadDeadline(time.Now().Add(wire.TransfersTimeout)); err != nil {
		file.Close()
		s.logger.Warn("put: failed to set read deadline", zap.Error(err))
		return
	}

	_, err = stream.ReceiveFile(idleReadConn{Conn: conn, timeout: wire.TransfersTimeout}, file)
	file.Close()
	if err != nil {
		s.logger.Warn("put: transfer aborted, leaving partial file", zap.String("path", init.AbsolutePath), zap.Error(err))
		return
	}

	sum, err := transfer.SHA256Path(init.AbsolutePath)
	if err != nil {
		s.logger.Warn("put: failed to verify checksum", zap.String("path", init.AbsolutePath), zap.Error(err))
		return
	}

	if sum != init.SHA256Sum {
		s.logger.Warn("put: checksum mismatch, deleting received file", zap.String("path", init.AbsolutePath))
		if err := os.Remove(init.AbsolutePath); err != nil {
			s.logger.Warn("put: failed to remove file after checksum mismatch", zap.Error(err))
		}
	}
}

// idleReadConn moves the read deadline forward before every Read, so the
// timeout caps each idle wait rather than the whole transfer.
type idleReadConn struct {
	net.Conn
	timeout time.Duration
}

func (c idleReadConn) Read(p []byte) (int, error) {
	if err := c.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}
