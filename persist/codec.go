package persist

import "encoding/json"

func marshal(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
