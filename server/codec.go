package server

import "encoding/json"

// jsonCodec lets Connect handlers exchange plain JSON structs. There is no
// proto IDL in this project, so the generic handler API is used with this
// codec instead of generated stubs.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}
