package asic

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// fakePort is an in-memory Port used by driver tests in place of a real
// UART, mirroring how the teacher's stratum client tests would substitute
// a net.Conn.
type fakePort struct {
	mu      sync.Mutex
	written bytes.Buffer
	toRead  bytes.Buffer
	closed  bool
}

func newFakePort() *fakePort {
	return &fakePort{}
}

func (f *fakePort) feed(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toRead.Write(b)
}

func (f *fakePort) writtenBytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.written.Bytes()...)
}

// Read mirrors go.bug.st/serial's timeout behavior: a read that hits its
// deadline with nothing buffered returns (0, nil) rather than an error, so
// driver code distinguishes "no frame yet" from a real I/O failure.
func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.toRead.Len() == 0 {
		return 0, nil
	}
	return f.toRead.Read(p)
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.Write(p)
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePort) SetReadTimeout(d time.Duration) error { return nil }
func (f *fakePort) SetBaud(baud int) error                { return nil }

var _ Port = (*fakePort)(nil)
var _ io.ReadWriteCloser = (*fakePort)(nil)
