package sensorfeed

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

var errPortClosed = errors.New("sensor port closed")

// TestablePort is an in-memory Porter for tests. Reads drain ReadBuffer;
// with BlockReads set an empty buffer blocks until data arrives, EOF is
// signalled with CloseInput, or the port is closed.
type TestablePort struct {
	mu sync.Mutex

	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer

	// ReadError is returned once by the next Read if set.
	ReadError error
	// WriteError is returned once by the next Write if set.
	WriteError error
	// ShortWrite makes Write report one byte fewer than it was given.
	ShortWrite bool
	CloseError error

	Closed     bool
	BlockReads bool
	eof        bool

	ReadCalls  int
	WriteCalls int

	readCond *sync.Cond
}

// NewTestablePort returns a port with blocking reads enabled.
func NewTestablePort() *TestablePort {
	t := &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
		BlockReads:  true,
	}
	t.readCond = sync.NewCond(&t.mu)
	return t
}

func (t *TestablePort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadCalls++

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	for t.BlockReads && !t.Closed && !t.eof && t.ReadBuffer.Len() == 0 {
		t.readCond.Wait()
	}
	if t.ReadBuffer.Len() > 0 {
		return t.ReadBuffer.Read(p)
	}
	if t.Closed {
		return 0, errPortClosed
	}
	return 0, io.EOF
}

func (t *TestablePort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.WriteCalls++

	if t.Closed {
		return 0, errPortClosed
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	if t.ShortWrite && len(p) > 0 {
		p = p[:len(p)-1]
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port closed and wakes blocked readers.
func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// AddReadData queues data for subsequent reads.
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
	t.readCond.Broadcast()
}

// CloseInput makes reads return io.EOF once the buffer drains.
func (t *TestablePort) CloseInput() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eof = true
	t.readCond.Broadcast()
}

// Written returns a copy of everything written to the port.
func (t *TestablePort) Written() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Clone(t.WriteBuffer.Bytes())
}
