package transfer

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gonzalop/drop/wire"
)

func TestCopyChunkedExact(t *testing.T) {
	t.Parallel()
	data := bytes.Repeat([]byte("x"), wire.FileBufferSize)
	var dst bytes.Buffer
	n, err := CopyChunked(&dst, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("CopyChunked: %v", err)
	}
	if n != int64(len(data)) || !bytes.Equal(dst.Bytes(), data) {
		t.Fatalf("chunked copy mismatch: got %d bytes", n)
	}
}

func TestCopyChunkedEmpty(t *testing.T) {
	t.Parallel()
	var dst bytes.Buffer
	n, err := CopyChunked(&dst, bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("CopyChunked: %v", err)
	}
	if n != 0 || dst.Len() != 0 {
		t.Fatalf("expected empty copy, got %d bytes", n)
	}
}

func TestSHA256Path(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sum, err := SHA256Path(path)
	if err != nil {
		t.Fatalf("SHA256Path: %v", err)
	}
	if len(sum) != 64 {
		t.Fatalf("expected 64 hex chars, got %d (%q)", len(sum), sum)
	}

	sum2, err := SHA256Path(path)
	if err != nil {
		t.Fatalf("SHA256Path: %v", err)
	}
	if sum != sum2 {
		t.Fatalf("hashing the same file twice gave different digests: %q vs %q", sum, sum2)
	}
}

func TestReadyFlagRoundTrip(t *testing.T) {
	t.Parallel()
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- SendReady(server) }()

	if err := client.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	if err := WaitReady(client); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SendReady: %v", err)
	}
}

func TestWaitReadyRejectsGarbage(t *testing.T) {
	t.Parallel()
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() { _, _ = server.Write([]byte("garbage!")) }()

	if err := client.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	if err := WaitReady(client); err == nil {
		t.Fatal("expected WaitReady to reject a non-matching flag")
	}
}

func TestStreamSendReceiveRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.bin")
	dstPath := filepath.Join(dir, "dst.bin")
	content := bytes.Repeat([]byte("ab"), 3000) // > one chunk

	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	srcFile, err := os.Open(srcPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dstPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer dstFile.Close()

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	sender := New(nil, nil)
	receiver := New(nil, nil)

	recvDone := make(chan error, 1)
	go func() {
		_, rerr := receiver.ReceiveFile(serverConn, dstFile)
		recvDone <- rerr
	}()

	if _, err := sender.SendFile(clientConn, srcFile); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if err := clientConn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-recvDone; err != nil {
		t.Fatalf("ReceiveFile: %v", err)
	}

	got, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("round-trip content mismatch: got %d bytes, want %d", len(got), len(content))
	}
}
