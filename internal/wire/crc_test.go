package wire

import "testing"

func TestCRC5_Deterministic(t *testing.T) {
	data := []byte{0x41, 0x09, 0x00, 0x14, 0x00, 0x00, 0x00, 0xFF}
	a := CRC5(data)
	b := CRC5(data)
	if a != b || a > 0x1F {
		t.Fatalf("CRC5 not deterministic or out of range: %#x", a)
	}
}

func TestCRC16False_KnownVector(t *testing.T) {
	// CRC-16/FALSE of an empty message is the untouched initial register.
	if got := CRC16False(nil); got != 0xFFFF {
		t.Fatalf("CRC16False(nil) = %#x, want 0xffff", got)
	}
}

func FuzzCRC5_Bounded(f *testing.F) {
	f.Add([]byte{0x41, 0x09, 0x00})
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, data []byte) {
		crc := CRC5(data)
		if crc > 0x1F {
			t.Fatalf("CRC5(% x) = %#x exceeds 5-bit range", data, crc)
		}
	})
}

func FuzzFrameRoundTrip(f *testing.F) {
	f.Add([]byte{0x00, 0x14, 0x00, 0x00, 0x00, 0xFF})
	f.Fuzz(func(t *testing.T, payload []byte) {
		if len(payload) > 250 {
			t.Skip("payload too large to fit the single-byte length field")
		}
		frame := EncodeCmd(GroupSingle, CmdWrite, payload)
		decoded, err := DecodeCmd(frame)
		if err != nil {
			t.Fatalf("DecodeCmd: %v", err)
		}
		if len(decoded.Payload) != len(payload) {
			t.Fatalf("round trip changed payload length: got %d want %d",
				len(decoded.Payload), len(payload))
		}
	})
}
