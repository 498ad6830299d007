// Package wire frames and parses the ASIC serial protocol: command frames
// (CRC-5 trailer) and job frames (CRC-16/FALSE trailer) outbound, result
// frames inbound.
package wire

import (
	"errors"
	"fmt"
	"sync"
)

// Frame type nibble, packed into the header byte alongside group and cmd.
const (
	TypeCmd byte = 0x40
	TypeJob byte = 0x20
)

// Group selects broadcast vs single-chip addressing.
type Group byte

const (
	GroupSingle Group = 0x00
	GroupAll    Group = 0x10
)

// Cmd is the command nibble carried in the header byte.
type Cmd byte

const (
	CmdSetAddress Cmd = 0x00
	CmdWrite      Cmd = 0x01
	CmdRead       Cmd = 0x02
	CmdInactive   Cmd = 0x03
)

var (
	preambleOut = [2]byte{0x55, 0xAA}
	preambleIn  = [2]byte{0xAA, 0x55}
)

// Error kinds returned by Decode, matching spec §4.1's failure taxonomy.
var (
	ErrCrcMismatch = errors.New("wire: crc mismatch")
	ErrBadPreamble = errors.New("wire: bad preamble")
	ErrShortFrame  = errors.New("wire: short frame")
)

// bufPool holds reusable scratch slices for assembling frames during
// encoding. The encoded frame each call returns is still a fresh
// allocation, so encoding is not allocation-free.
var bufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 64)
		return &b
	},
}

func getBuf() *[]byte {
	b := bufPool.Get().(*[]byte)
	*b = (*b)[:0]
	return b
}

func putBuf(b *[]byte) {
	bufPool.Put(b)
}

// EncodeCmd builds a CMD frame: 0x55 0xAA, header, length, payload, CRC-5.
// The returned slice is freshly allocated and owned by the caller, who may
// keep it; the pooled scratch buffer is never returned.
func EncodeCmd(group Group, cmd Cmd, payload []byte) []byte {
	header := TypeCmd | byte(group) | byte(cmd)
	length := byte(len(payload) + 3)

	buf := getBuf()
	defer putBuf(buf)

	*buf = append(*buf, preambleOut[0], preambleOut[1], header, length)
	*buf = append(*buf, payload...)

	crc := CRC5((*buf)[2:])

	out := make([]byte, len(*buf)+1)
	copy(out, *buf)
	out[len(out)-1] = crc
	return out
}

// EncodeJob builds a JOB frame: 0x55 0xAA, header, length, payload, CRC-16/FALSE.
func EncodeJob(group Group, cmd Cmd, payload []byte) []byte {
	header := TypeJob | byte(group) | byte(cmd)
	length := byte(len(payload) + 4)

	buf := getBuf()
	defer putBuf(buf)

	*buf = append(*buf, preambleOut[0], preambleOut[1], header, length)
	*buf = append(*buf, payload...)

	crc := CRC16False((*buf)[2:])

	out := make([]byte, len(*buf)+2)
	copy(out, *buf)
	out[len(out)-2] = byte(crc >> 8)
	out[len(out)-1] = byte(crc)
	return out
}

// DecodedCmd is a parsed CMD frame.
type DecodedCmd struct {
	Group   Group
	Cmd     Cmd
	Payload []byte
	Crc     uint8
}

// DecodeCmd parses a CMD frame previously produced by EncodeCmd, validating
// preamble, length and CRC-5.
func DecodeCmd(frame []byte) (DecodedCmd, error) {
	var d DecodedCmd
	if len(frame) < 5 {
		return d, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}
	if frame[0] != preambleOut[0] || frame[1] != preambleOut[1] {
		return d, ErrBadPreamble
	}

	header := frame[2]
	length := int(frame[3])
	payloadLen := length - 3
	if payloadLen < 0 || len(frame) < 4+payloadLen+1 {
		return d, fmt.Errorf("%w: declared length %d", ErrShortFrame, length)
	}

	payload := frame[4 : 4+payloadLen]
	gotCrc := frame[4+payloadLen]
	wantCrc := CRC5(frame[2 : 4+payloadLen])
	if gotCrc != wantCrc {
		return d, fmt.Errorf("%w: got %#x want %#x", ErrCrcMismatch, gotCrc, wantCrc)
	}

	d.Group = Group(header & 0x10)
	d.Cmd = Cmd(header & 0x0F)
	d.Payload = payload
	d.Crc = gotCrc
	return d, nil
}

// DecodedJob is a parsed JOB frame.
type DecodedJob struct {
	Group   Group
	Cmd     Cmd
	Payload []byte
	Crc     uint16
}

// DecodeJob parses a JOB frame previously produced by EncodeJob, validating
// preamble, length and CRC-16/FALSE.
func DecodeJob(frame []byte) (DecodedJob, error) {
	var d DecodedJob
	if len(frame) < 6 {
		return d, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}
	if frame[0] != preambleOut[0] || frame[1] != preambleOut[1] {
		return d, ErrBadPreamble
	}

	header := frame[2]
	length := int(frame[3])
	payloadLen := length - 4
	if payloadLen < 0 || len(frame) < 4+payloadLen+2 {
		return d, fmt.Errorf("%w: declared length %d", ErrShortFrame, length)
	}

	payload := frame[4 : 4+payloadLen]
	gotCrc := uint16(frame[4+payloadLen])<<8 | uint16(frame[4+payloadLen+1])
	wantCrc := CRC16False(frame[2 : 4+payloadLen])
	if gotCrc != wantCrc {
		return d, fmt.Errorf("%w: got %#x want %#x", ErrCrcMismatch, gotCrc, wantCrc)
	}

	d.Group = Group(header & 0x10)
	d.Cmd = Cmd(header & 0x0F)
	d.Payload = payload
	d.Crc = gotCrc
	return d, nil
}

// ResultFrameSize is the fixed size of an ASIC result frame (spec §3).
const ResultFrameSize = 11

// ResultFrame is the raw, still-unrouted form of a decoded result frame;
// the ASIC driver further interprets Nonce/JobID/Version per spec §4.2.
type ResultFrame struct {
	Nonce     uint32
	MidstateN uint8
	JobID     uint8
	Version   uint16
	Crc       uint8
}

// DecodeResult parses an 11-byte result frame: preamble 0xAA 0x55, nonce
// (LE u32), midstate_num (u8), job_id (u8), version (LE u16), CRC-5.
func DecodeResult(frame []byte) (ResultFrame, error) {
	var r ResultFrame
	if len(frame) < ResultFrameSize {
		return r, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}
	if frame[0] != preambleIn[0] || frame[1] != preambleIn[1] {
		return r, ErrBadPreamble
	}

	r.Nonce = uint32(frame[2]) | uint32(frame[3])<<8 | uint32(frame[4])<<16 | uint32(frame[5])<<24
	r.MidstateN = frame[6]
	r.JobID = frame[7]
	r.Version = uint16(frame[8]) | uint16(frame[9])<<8
	r.Crc = frame[10]

	wantCrc := CRC5(frame[0:10])
	if r.Crc != wantCrc {
		return r, fmt.Errorf("%w: got %#x want %#x", ErrCrcMismatch, r.Crc, wantCrc)
	}

	return r, nil
}
