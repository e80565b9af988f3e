package karaokev1

import (
	"github.com/segmentio/encoding/json"
)

// Codec marshals plain Go messages as JSON. It replaces connect's built-in
// "json" codec, which only accepts protobuf messages.
type Codec struct{}

// Name implements connect.Codec.
func (Codec) Name() string { return "json" }

// Marshal implements connect.Codec.
func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements connect.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
