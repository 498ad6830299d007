package wire

import (
	"bytes"
	"testing"
)

func TestEncodeCmd_TicketMaskWrite(t *testing.T) {
	payload := []byte{0x00, 0x14, 0x00, 0x00, 0x00, 0xFF}

	frame := EncodeCmd(GroupSingle, CmdWrite, payload)

	wantPrefix := []byte{0x55, 0xAA, 0x41, 0x09, 0x00, 0x14, 0x00, 0x00, 0x00, 0xFF}
	if !bytes.Equal(frame[:len(wantPrefix)], wantPrefix) {
		t.Fatalf("got prefix % x, want % x", frame[:len(wantPrefix)], wantPrefix)
	}
	if len(frame) != len(wantPrefix)+1 {
		t.Fatalf("got frame length %d, want %d", len(frame), len(wantPrefix)+1)
	}

	wantCrc := CRC5(frame[2 : len(frame)-1])
	if frame[len(frame)-1] != wantCrc {
		t.Fatalf("trailing CRC %#x does not match CRC5 over header..payload (%#x)",
			frame[len(frame)-1], wantCrc)
	}
}

func TestCmdRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x14, 0x00, 0x00, 0x00, 0xFF}
	frame := EncodeCmd(GroupAll, CmdWrite, payload)

	decoded, err := DecodeCmd(frame)
	if err != nil {
		t.Fatalf("DecodeCmd: %v", err)
	}
	if decoded.Group != GroupAll || decoded.Cmd != CmdWrite {
		t.Fatalf("got group=%v cmd=%v, want GroupAll/CmdWrite", decoded.Group, decoded.Cmd)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("got payload % x, want % x", decoded.Payload, payload)
	}
}

func TestJobRoundTrip(t *testing.T) {
	payload := make([]byte, 52)
	for i := range payload {
		payload[i] = byte(i)
	}
	frame := EncodeJob(GroupSingle, CmdWrite, payload)

	decoded, err := DecodeJob(frame)
	if err != nil {
		t.Fatalf("DecodeJob: %v", err)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("got payload % x, want % x", decoded.Payload, payload)
	}
}

func TestDecodeCmd_CrcMismatch(t *testing.T) {
	frame := EncodeCmd(GroupSingle, CmdWrite, []byte{0x01, 0x02})
	frame[len(frame)-1] ^= 0xFF

	_, err := DecodeCmd(frame)
	if err == nil {
		t.Fatal("expected crc mismatch error, got nil")
	}
}

func TestDecodeCmd_BadPreamble(t *testing.T) {
	frame := EncodeCmd(GroupSingle, CmdWrite, []byte{0x01, 0x02})
	frame[0] = 0x00

	_, err := DecodeCmd(frame)
	if err == nil {
		t.Fatal("expected bad preamble error, got nil")
	}
}

func TestDecodeResult(t *testing.T) {
	// Scenario 4: nonce=0x12345678 LE, midstate_num=0x00, job_id=0x38,
	// version=0x0001 LE.
	frame := []byte{0xAA, 0x55, 0x78, 0x56, 0x34, 0x12, 0x00, 0x38, 0x01, 0x00, 0x00}
	frame[10] = CRC5(frame[0:10])

	r, err := DecodeResult(frame)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if r.Nonce != 0x12345678 {
		t.Fatalf("got nonce %#x, want %#x", r.Nonce, 0x12345678)
	}
	if r.JobID != 0x38 {
		t.Fatalf("got job id %#x, want %#x", r.JobID, 0x38)
	}
	if r.Version != 0x0001 {
		t.Fatalf("got version %#x, want %#x", r.Version, 0x0001)
	}
}

func TestDecodeResult_ShortFrame(t *testing.T) {
	_, err := DecodeResult([]byte{0xAA, 0x55})
	if err == nil {
		t.Fatal("expected short frame error, got nil")
	}
}
