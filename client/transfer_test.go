package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/gonzalop/drop/server"
	"github.com/gonzalop/drop/wire"
)

var transferTestPortCounter atomic.Int32

func nextTransferTestPort() int {
	return 34000 + int(transferTestPortCounter.Add(1))
}

// startRealServer runs the actual server package's dispatcher rooted at a
// temp directory, so this test exercises the client against real
// negotiation and streaming rather than a scripted stub.
func startRealServer(t *testing.T, serverCfg *tls.Config) string {
	t.Helper()

	controlPort := nextTransferTestPort()
	dataPort := nextTransferTestPort()
	controlAddr := fmt.Sprintf("127.0.0.1:%d", controlPort)
	dataAddr := fmt.Sprintf("127.0.0.1:%d", dataPort)

	srv, err := server.New(controlAddr, dataAddr, dataPort, serverCfg,
		server.WithLogger(zap.NewNop()), server.WithHomeDir(t.TempDir()))
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-srv.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("server did not become ready")
	}

	return controlAddr
}

func TestClientPutThenGetRoundTrip(t *testing.T) {
	t.Parallel()
	serverCfg, clientCfg := generateLoopbackTLS(t)
	controlAddr := startRealServer(t, serverCfg)

	localDir := t.TempDir()
	uploadPath := filepath.Join(localDir, "notes.txt")
	content := bytes.Repeat([]byte("client-side-content-"), 300)
	if err := os.WriteFile(uploadPath, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var out bytes.Buffer
	sess, err := Dial(controlAddr, clientCfg, WithOutput(&out))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	sess.dispatch(wire.CmdPut, uploadPath, true)
	if !bytes.Contains(out.Bytes(), []byte("File successfully uploaded")) {
		t.Fatalf("expected upload success message, got %q", out.String())
	}

	// The client returns as soon as its own byte stream finishes; the
	// server's post-close checksum verification runs a moment later on its
	// own goroutine, so give it a beat before downloading the same file.
	time.Sleep(100 * time.Millisecond)

	downloadDir := t.TempDir()
	sess.localCwd = downloadDir
	out.Reset()
	sess.dispatch(wire.CmdGet, "notes.txt", true)
	if !bytes.Contains(out.Bytes(), []byte("File successfully downloaded")) {
		t.Fatalf("expected download success message, got %q", out.String())
	}

	got, err := os.ReadFile(filepath.Join(downloadDir, "notes.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("downloaded content does not match uploaded content")
	}
}

func TestClientGetMissingFilePrintsError(t *testing.T) {
	t.Parallel()
	serverCfg, clientCfg := generateLoopbackTLS(t)
	controlAddr := startRealServer(t, serverCfg)

	var out bytes.Buffer
	sess, err := Dial(controlAddr, clientCfg, WithOutput(&out))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	sess.dispatch(wire.CmdGet, "nope.bin", true)
	if !bytes.Contains(out.Bytes(), []byte("No such file")) {
		t.Fatalf("expected 'No such file', got %q", out.String())
	}
}

func TestClientPutMissingLocalFilePrintsErrorWithoutDialing(t *testing.T) {
	t.Parallel()
	serverCfg, clientCfg := generateLoopbackTLS(t)
	controlAddr := startRealServer(t, serverCfg)

	var out bytes.Buffer
	sess, err := Dial(controlAddr, clientCfg, WithOutput(&out))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	sess.dispatch(wire.CmdPut, filepath.Join(t.TempDir(), "ghost.bin"), true)
	if !bytes.Contains(out.Bytes(), []byte("No such file")) {
		t.Fatalf("expected 'No such file', got %q", out.String())
	}
}
