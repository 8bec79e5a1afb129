// Package transfer implements the data-channel streaming engine: fixed-size
// chunked I/O, EOF-as-terminator semantics, the put/get handshake asymmetry,
// and SHA-256 integrity verification.
package transfer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gonzalop/drop/internal/ratelimit"
	"github.com/gonzalop/drop/wire"
)

// CopyChunked streams src to dst in fixed wire.FileBufferSize chunks,
// looping read-then-write until src reports EOF. EOF is the only
// end-of-stream signal; the caller's declared file size (if any) is purely
// advisory for progress display.
func CopyChunked(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, wire.FileBufferSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("transfer: write chunk: %w", werr)
			}
			total += int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, fmt.Errorf("transfer: read chunk: %w", rerr)
		}
		if n == 0 {
			return total, nil
		}
	}
}

// SHA256Path computes the SHA-256 digest of the file at path, hex-encoded.
func SHA256Path(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SendReady writes the fixed 8-byte READY flag that acknowledges a put
// initiation, letting the client know the destination file is open.
func SendReady(conn net.Conn) error {
	_, err := conn.Write(wire.ReadyFlag)
	return err
}

// WaitReady blocks until the READY flag arrives on conn, or returns an
// error if what arrives doesn't match.
func WaitReady(conn net.Conn) error {
	buf := make([]byte, len(wire.ReadyFlag))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return fmt.Errorf("transfer: waiting for ready flag: %w", err)
	}
	if !bytes.Equal(buf, wire.ReadyFlag) {
		return fmt.Errorf("transfer: unexpected ready flag %q", buf)
	}
	return nil
}

// Stream drives one file transfer over an already-open data connection,
// optionally rate limiting and always logging a structured
// transfer_complete/transfer_failed line, correlated by a per-transfer uuid
// (logging only — it never appears on the wire).
type Stream struct {
	ID      uuid.UUID
	Logger  *zap.Logger
	Limiter *ratelimit.Limiter
}

// New creates a Stream with a fresh correlation ID.
func New(logger *zap.Logger, limiter *ratelimit.Limiter) *Stream {
	return &Stream{ID: uuid.New(), Logger: logger, Limiter: limiter}
}

// SendFile streams file to conn, the sender side of a get (server→client)
// or the bulk-send half of a put (client→server).
func (s *Stream) SendFile(conn net.Conn, file *os.File) (int64, error) {
	var w io.Writer = conn
	if s.Limiter != nil {
		w = ratelimit.NewWriter(w, s.Limiter)
	}
	start := time.Now()
	n, err := CopyChunked(w, file)
	s.log("send", n, time.Since(start), err)
	return n, err
}

// ReceiveFile streams bytes from conn into file, the receiver side of a put
// (client→server) or the bulk-receive half of a get (server→client).
func (s *Stream) ReceiveFile(conn net.Conn, file *os.File) (int64, error) {
	var r io.Reader = conn
	if s.Limiter != nil {
		r = ratelimit.NewReader(r, s.Limiter)
	}
	start := time.Now()
	n, err := CopyChunked(file, r)
	s.log("receive", n, time.Since(start), err)
	return n, err
}

func (s *Stream) log(direction string, n int64, dur time.Duration, err error) {
	if s.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("transfer_id", s.ID.String()),
		zap.String("direction", direction),
		zap.Int64("bytes", n),
		zap.Duration("duration", dur),
	}
	if err != nil {
		s.Logger.Warn("transfer_failed", append(fields, zap.Error(err))...)
		return
	}
	s.Logger.Info("transfer_complete", fields...)
}
