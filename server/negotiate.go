package server

import (
	"os"
	"path/filepath"

	"github.com/gonzalop/drop/transfer"
	"github.com/gonzalop/drop/wire"
)

// negotiateGet turns a get command into a transfer grant once the file is
// confirmed to exist and be a regular file (C4).
func (cs *controlSession) negotiateGet(arg string) any {
	path := cs.resolve(arg)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return wire.Err("No such file")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return wire.Err("No such file")
	}

	sum, err := transfer.SHA256Path(abs)
	if err != nil {
		return wire.Err("No such file")
	}

	size := info.Size()
	return wire.TransferGrant{
		StatusCode:   wire.StatusOK,
		Operation:    wire.OpGet,
		AbsolutePath: abs,
		Filesize:     &size,
		Token:        cs.server.tok.String(),
		TransferPort: cs.server.dataPort,
		SHA256Sum:    sum,
	}
}

// negotiatePut turns a put command into a transfer grant once the
// destination is confirmed not to already exist (C4). The destination is
// the session's CWD joined with the argument's basename, per spec.md §4.3,
// so directory components in the argument never move the granted target
// out of the CWD. The data channel writes to the absolute_path echoed in the
// client's initiation frame; it does not check it against this grant.
func (cs *controlSession) negotiatePut(arg string) any {
	target := filepath.Join(cs.cwd, filepath.Base(arg))

	if _, err := os.Stat(target); err == nil || !os.IsNotExist(err) {
		return wire.Err("File already exists")
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return wire.Err("File already exists")
	}

	return wire.TransferGrant{
		StatusCode:   wire.StatusOK,
		Operation:    wire.OpPut,
		AbsolutePath: abs,
		Filesize:     nil,
		Token:        cs.server.tok.String(),
		TransferPort: cs.server.dataPort,
	}
}
