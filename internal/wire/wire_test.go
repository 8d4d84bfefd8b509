package wire

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

func TestValidCallID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"abc-123_XYZ", true},
		{"", false},
		{strings.Repeat("a", 128), true},
		{strings.Repeat("a", 129), false},
		{"has space", false},
		{"has/slash", false},
	}

	for _, tt := range tests {
		if got := ValidCallID(tt.id); got != tt.want {
			t.Errorf("ValidCallID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestDecodeAuthRequest(t *testing.T) {
	raw := []byte(`{"type":"auth_request","callId":"C1","correlationId":"corr-1","metadata":{"tenantId":"T1","userId":"U1"}}`)

	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}

	ar, ok := msg.(AuthRequest)
	if !ok {
		t.Fatalf("expected AuthRequest, got %T", msg)
	}
	if ar.CallID != "C1" || ar.Metadata.TenantID != "T1" {
		t.Errorf("unexpected decoded fields: %+v", ar)
	}
}

func TestDecodeRejectsInvalidCallID(t *testing.T) {
	raw := []byte(`{"type":"session_start","callId":"has space","direction":"inbound"}`)

	_, err := Decode(raw)
	if err == nil {
		t.Fatal("expected ProtocolError for invalid callId")
	}
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("expected *ProtocolError, got %T", err)
	}
}

func TestDecodeRejectsOversizeMessage(t *testing.T) {
	huge := make([]byte, MaxMessageBytes+1)
	_, err := Decode(huge)
	if err == nil {
		t.Fatal("expected ProtocolError for oversize message")
	}
}

func TestDecodeRejectsOversizeAudioPayload(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString(make([]byte, MaxAudioPayloadBytes*2))
	raw := []byte(`{"type":"audio_in","callId":"C1","seq":1,"data":"` + payload + `"}`)

	_, err := Decode(raw)
	if err == nil {
		t.Fatal("expected ProtocolError for oversize audio payload")
	}
}

func TestDecodePingAllowsEmptyCallID(t *testing.T) {
	raw := []byte(`{"type":"ping","callId":""}`)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("ping should not require a valid callId: %v", err)
	}
	if _, ok := msg.(Ping); !ok {
		t.Fatalf("expected Ping, got %T", msg)
	}
}

func TestDecodeUnrecognizedType(t *testing.T) {
	raw := []byte(`{"type":"bogus","callId":"C1"}`)
	_, err := Decode(raw)
	if err == nil {
		t.Fatal("expected ProtocolError for unrecognized type")
	}
}

func TestEncodeAudioOut(t *testing.T) {
	data := base64.StdEncoding.EncodeToString(make([]byte, FrameBytes))
	msg := AudioOut{Type: TypeAudioOut, CallID: "C1", Seq: 0, Data: data}

	raw, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to unmarshal encoded message: %v", err)
	}
	if env.Type != TypeAudioOut || env.CallID != "C1" {
		t.Errorf("unexpected envelope after encode: %+v", env)
	}
}
