// Package jsonw is a thin wrapper around bytedance/sonic, used for every
// encode/decode of a wire envelope so the hot request/response path
// avoids encoding/json's reflection overhead, the same substitution the
// teacher's own utils/jsonw makes throughout its codebase.
package jsonw

import (
	"encoding/json"
	"io"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/decoder"
	"github.com/bytedance/sonic/encoder"
)

// RawMessage defers JSON decoding the way encoding/json.RawMessage does;
// sonic's encoder/decoder honor json.Marshaler/json.Unmarshaler, so this
// type round-trips through sonic exactly as it would through encoding/json.
type RawMessage = json.RawMessage

var (
	Marshal   = sonic.Marshal
	Unmarshal = sonic.Unmarshal
)

func Decode(reader io.Reader, obj any) error {
	return decoder.NewStreamDecoder(reader).Decode(obj)
}

func Encode(val any, writer io.Writer) error {
	return encoder.NewStreamEncoder(writer).Encode(val)
}
