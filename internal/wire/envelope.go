package wire

import (
	"encoding/json"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pspoerri/carta-compute/internal/errs"
)

// Envelope is the wire frame a session transport would exchange: a Kind
// tag naming which message the Payload holds, serialized through
// structpb.Struct (a generated proto.Message) rather than a fabricated
// generated-code file — no .proto IDL was retrieved alongside this spec,
// so this is the pragmatic way to exercise google.golang.org/protobuf's
// wire format (see DESIGN.md).
type Envelope struct {
	Kind    string
	Payload *structpb.Struct
}

// NewEnvelope packs msg (any of the request/response types in
// messages.go) into an Envelope tagged kind, round-tripping through JSON
// to get a map[string]any structpb.NewStruct accepts.
func NewEnvelope(kind string, msg any) (*Envelope, error) {
	payload, err := toStruct(msg)
	if err != nil {
		return nil, errs.Internal("failed to pack envelope payload", err)
	}
	return &Envelope{Kind: kind, Payload: payload}, nil
}

func toStruct(msg any) (*structpb.Struct, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// Decode unmarshals the Envelope's Payload into dst, which must be a
// pointer to one of the request/response types in messages.go.
func (e *Envelope) Decode(dst any) error {
	raw, err := json.Marshal(e.Payload.AsMap())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errs.Internal("failed to decode envelope payload", err)
	}
	return nil
}

// frameStruct is the on-the-wire protobuf shape: {"kind": ..., "payload":
// ...}, itself a structpb.Struct so Marshal/Unmarshal round-trip through
// proto.Marshal/proto.Unmarshal without any hand-rolled framing.
func frameStruct(kind string, payload *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"kind":    kind,
		"payload": payload.AsMap(),
	})
}

// Marshal serializes the Envelope to protobuf wire bytes.
func (e *Envelope) Marshal() ([]byte, error) {
	full, err := frameStruct(e.Kind, e.Payload)
	if err != nil {
		return nil, errs.Internal("failed to frame envelope", err)
	}
	return proto.Marshal(full)
}

// UnmarshalEnvelope parses protobuf wire bytes produced by Marshal.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	full := &structpb.Struct{}
	if err := proto.Unmarshal(data, full); err != nil {
		return nil, errs.Internal("failed to unmarshal envelope", err)
	}
	m := full.AsMap()
	kind, _ := m["kind"].(string)
	payloadMap, _ := m["payload"].(map[string]any)
	payload, err := structpb.NewStruct(payloadMap)
	if err != nil {
		return nil, errs.Internal("failed to unpack envelope payload", err)
	}
	return &Envelope{Kind: kind, Payload: payload}, nil
}
