package stratum

import (
	"encoding/hex"
	"strconv"
)

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

func parseHexUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
