package wire

import "testing"

func TestEnvelopeRoundTrip(t *testing.T) {
	req := SetImageChannelsRequest{FileID: 3, Z: 7, Stokes: 0}
	env, err := NewEnvelope("SetImageChannels", req)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	data, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	decoded, err := UnmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	if decoded.Kind != "SetImageChannels" {
		t.Fatalf("kind = %q, want SetImageChannels", decoded.Kind)
	}

	var got SetImageChannelsRequest
	if err := decoded.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != req {
		t.Fatalf("got %+v, want %+v", got, req)
	}
}

func TestEnvelopeDecodeMomentRequest(t *testing.T) {
	req := MomentRequest{
		FileID: 1, RegionID: 2, Stokes: 0,
		ZStart: 0, ZEnd: 10,
		SpectralValues: []float64{1, 2, 3},
	}
	env, err := NewEnvelope("MomentRequest", req)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	data, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := UnmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	var got MomentRequest
	if err := decoded.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.FileID != req.FileID || got.ZEnd != req.ZEnd || len(got.SpectralValues) != 3 {
		t.Fatalf("got %+v, want %+v", got, req)
	}
}
