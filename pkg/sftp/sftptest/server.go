// Package sftptest runs an in-memory SFTP server for tests.
package sftptest

import (
	"io"
	"testing"

	"github.com/pkg/sftp"

	nsftp "github.com/quocson95/nedok/pkg/sftp"
)

// Ref is a fixed connection ID.
type Ref string

func (r Ref) ConnectionID() string { return string(r) }

type pipeConn struct {
	io.Reader
	io.WriteCloser
}

// NewRawClient serves sftp.InMemHandler over a pipe and returns a client
// connected to it. Both ends are closed when the test finishes.
func NewRawClient(t testing.TB) *sftp.Client {
	t.Helper()
	clientRead, serverWrite := io.Pipe()
	serverRead, clientWrite := io.Pipe()

	server := sftp.NewRequestServer(pipeConn{serverRead, serverWrite}, sftp.InMemHandler())
	go func() {
		_ = server.Serve()
		// the client's receive loop only ends on EOF
		serverWrite.Close()
	}()

	client, err := sftp.NewClientPipe(clientRead, clientWrite)
	if err != nil {
		t.Fatalf("Failed to start in-memory sftp client: %v", err)
	}
	t.Cleanup(func() {
		serverWrite.Close()
		client.Close()
		server.Close()
	})
	return client
}

// NewTransport returns a remote transport backed by a fresh in-memory
// filesystem and owned by a session named id.
func NewTransport(t testing.TB, id string) *nsftp.Client {
	t.Helper()
	return nsftp.Wrap(NewRawClient(t), Ref(id))
}
