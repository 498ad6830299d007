package asic

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the seam between the driver and the physical UART — the same
// role net.Conn plays for the stratum client. A fakePort in tests replaces
// serialPort in production.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadTimeout(d time.Duration) error
	SetBaud(baud int) error
}

// serialPort wraps go.bug.st/serial for the production ASIC UART.
type serialPort struct {
	path string
	port serial.Port
}

// OpenSerialPort opens the ASIC chain's UART at path with the given
// initial baud rate, 8N1 framing per spec §6.
func OpenSerialPort(path string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return &serialPort{path: path, port: p}, nil
}

func (s *serialPort) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *serialPort) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *serialPort) Close() error                { return s.port.Close() }

func (s *serialPort) SetReadTimeout(d time.Duration) error {
	return s.port.SetReadTimeout(d)
}

func (s *serialPort) SetBaud(baud int) error {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return s.port.SetMode(mode)
}
