//go:build nojsonsimd

package stratum

import "encoding/json"

func fastJSONMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func fastJSONUnmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
