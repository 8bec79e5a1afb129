// Package wire defines the JSON frame schemas exchanged on the control and
// data channels, and the framing discipline used to read them.
package wire

import "time"

// Buffer and timing limits carried over from the protocol's original budget.
const (
	// ControlBufferSize is the maximum number of bytes a single control
	// frame may occupy. A frame that does not parse within this many bytes
	// is a protocol violation.
	ControlBufferSize = 2048

	// InitBufferSize is the maximum size of the transfer-initiation frame
	// sent as the first message on a data connection.
	InitBufferSize = 4096

	// FileBufferSize is the chunk size used by the streaming loop.
	FileBufferSize = 4096

	// HandshakeTimeout bounds the TLS handshake performed inside each
	// accept worker.
	HandshakeTimeout = 10 * time.Second

	// TransfersTimeout bounds both the wait for a transfer-initiation frame
	// and each subsequent idle read on a data connection.
	TransfersTimeout = 90 * time.Second

	// ReaperInterval is how often the dispatcher's housekeeping job runs.
	ReaperInterval = 5 * time.Minute
)

// ReadyFlag is the fixed 8-byte acknowledgement the server sends on the
// data connection after validating a put initiation, before the client may
// start streaming bytes.
var ReadyFlag = []byte("10101010")

// Status codes. The protocol uses exactly these two.
const (
	StatusOK    = 200
	StatusError = 500
)

// Command names accepted on the control channel.
const (
	CmdPwd   = "pwd"
	CmdLs    = "ls"
	CmdCd    = "cd"
	CmdMkdir = "mkdir"
	CmdGet   = "get"
	CmdPut   = "put"
)

// Operation names carried by transfer grants and initiations.
type Operation string

const (
	OpGet Operation = "get"
	OpPut Operation = "put"
)

// Request is a control-channel request frame, client to server.
type Request struct {
	Command  string  `json:"command"`
	Argument *string `json:"argument"`
}

// Arg returns the request's argument, or "" if it was null.
func (r Request) Arg() string {
	if r.Argument == nil {
		return ""
	}
	return *r.Argument
}

// Response is a plain control-channel response frame, server to client.
type Response struct {
	StatusCode    int     `json:"status_code"`
	StatusMessage string  `json:"status_message"`
	Content       *string `json:"content"`
}

// OK builds a 200/OK response with the given content (nil for no content).
func OK(content *string) Response {
	return Response{StatusCode: StatusOK, StatusMessage: "OK", Content: content}
}

// Err builds a 500 response with the given message.
func Err(message string) Response {
	return Response{StatusCode: StatusError, StatusMessage: message, Content: nil}
}

// StrPtr is a small helper for building *string content fields.
func StrPtr(s string) *string { return &s }

// TransferGrant is the 200 response variant returned for get/put, and is
// also the shape of the transfer-initiation frame the client echoes back on
// the data connection (augmented with SHA256Sum for put, and, in this
// implementation, populated by the server for get too — see DESIGN.md's
// resolution of the spec's get-checksum open question).
type TransferGrant struct {
	StatusCode   int       `json:"status_code"`
	Operation    Operation `json:"operation"`
	AbsolutePath string    `json:"absolute_path"`
	Filesize     *int64    `json:"filesize"`
	Token        string    `json:"token"`
	TransferPort int       `json:"transfer_port"`
	SHA256Sum    string    `json:"sha256sum,omitempty"`
}

// TransferInit is the frame the client sends first on a fresh data
// connection. It has the same shape as the grant the server handed it.
type TransferInit = TransferGrant
