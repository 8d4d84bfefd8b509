// Package wire decodes and encodes the bridge's JSON-over-WebSocket message
// set. Every message is a UTF-8 JSON object discriminated by its "type"
// field, generalizing the gateway event-framing style used elsewhere in
// this codebase (one struct per event, a thin envelope peek before full
// decode) to the bridge's own auth/session/audio/control vocabulary.
package wire

import (
	"encoding/json"
	"fmt"
	"regexp"
)

const (
	// MaxMessageBytes bounds a single inbound WebSocket text frame.
	MaxMessageBytes = 1 << 20 // 1 MiB
	// MaxAudioPayloadBytes bounds the base64 "data" field of audio_in.
	MaxAudioPayloadBytes = 2048
	// FrameBytes is the fixed size of one 20ms @ 16kHz mono PCM16 frame.
	FrameBytes = 640
)

var callIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidCallID reports whether id satisfies the bridge's call-id shape.
func ValidCallID(id string) bool {
	return callIDPattern.MatchString(id)
}

// Client -> Server message types.
const (
	TypeAuthRequest   = "auth_request"
	TypeSessionStart  = "session_start"
	TypeCallStatus    = "call_status"
	TypeAudioIn       = "audio_in"
	TypeSessionEnd    = "session_end"
	TypeSessionResume = "session_resume"
	TypePing          = "ping"
)

// Server -> Client message types.
const (
	TypeAuthResponse = "auth_response"
	TypeInitiateCall = "initiate_call"
	TypeAudioOut     = "audio_out"
	TypeHangup       = "hangup"
	TypePong         = "pong"
	TypeFlush        = "flush"
)

// Envelope is the minimal shape every message can be peeked through to
// learn its type and callId before committing to a concrete decode.
type Envelope struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
}

// Metadata carries the caller-identity fields the Authorizer and Session
// Recorder reason over.
type Metadata struct {
	TenantID          string `json:"tenantId"`
	UserID            string `json:"userId"`
	TeamsCallID       string `json:"teamsCallId,omitempty"`
	DisplayName       string `json:"displayName,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
	PhoneNumber       string `json:"phoneNumber,omitempty"`
}

type AuthRequest struct {
	Type          string   `json:"type"`
	CallID        string   `json:"callId"`
	CorrelationID string   `json:"correlationId"`
	Metadata      Metadata `json:"metadata"`
}

type SessionStart struct {
	Type      string   `json:"type"`
	CallID    string   `json:"callId"`
	Direction string   `json:"direction"`
	Metadata  Metadata `json:"metadata"`
}

type CallStatus struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type AudioIn struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
	Seq    int64  `json:"seq"`
	Data   string `json:"data"`
}

type SessionEnd struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
	Reason string `json:"reason"`
}

type SessionResume struct {
	Type           string `json:"type"`
	CallID         string `json:"callId"`
	LastReceivedSeq int64 `json:"lastReceivedSeq"`
}

type Ping struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
}

type AuthResponse struct {
	Type          string `json:"type"`
	CallID        string `json:"callId"`
	CorrelationID string `json:"correlationId"`
	Authorized    bool   `json:"authorized"`
	Reason        string `json:"reason,omitempty"`
	Strategy      string `json:"strategy"`
	Timestamp     int64  `json:"timestamp"`
}

// CallTarget is either {type:"user", userId} or {type:"phone", number}.
type CallTarget struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
	Number string `json:"number,omitempty"`
}

type InitiateCall struct {
	Type    string     `json:"type"`
	CallID  string     `json:"callId"`
	Target  CallTarget `json:"target"`
	Message string     `json:"message,omitempty"`
}

type AudioOut struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
	Seq    int64  `json:"seq"`
	Data   string `json:"data"`
}

type Hangup struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
}

type Pong struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
}

type Flush struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
}

// ProtocolError signals a malformed, oversize, or otherwise invalid
// message. The receive loop catches it, logs a warning, and drops the
// offending message without closing the connection (spec §4.2).
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Reason }

// Decode peeks the envelope, validates size/callId, and fully decodes the
// message into the concrete type matching its "type" field. The returned
// value is one of the Client -> Server structs above.
func Decode(raw []byte) (interface{}, error) {
	if len(raw) > MaxMessageBytes {
		return nil, &ProtocolError{Reason: fmt.Sprintf("message exceeds %d bytes", MaxMessageBytes)}
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ProtocolError{Reason: "invalid JSON: " + err.Error()}
	}

	if env.Type != TypePing && !ValidCallID(env.CallID) {
		return nil, &ProtocolError{Reason: "invalid callId"}
	}

	switch env.Type {
	case TypeAuthRequest:
		var m AuthRequest
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, &ProtocolError{Reason: err.Error()}
		}
		return m, nil
	case TypeSessionStart:
		var m SessionStart
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, &ProtocolError{Reason: err.Error()}
		}
		if m.Direction != "inbound" && m.Direction != "outbound" {
			return nil, &ProtocolError{Reason: "invalid direction"}
		}
		return m, nil
	case TypeCallStatus:
		var m CallStatus
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, &ProtocolError{Reason: err.Error()}
		}
		return m, nil
	case TypeAudioIn:
		var m AudioIn
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, &ProtocolError{Reason: err.Error()}
		}
		if len(m.Data) > MaxAudioPayloadBytes {
			return nil, &ProtocolError{Reason: "audio payload too large"}
		}
		return m, nil
	case TypeSessionEnd:
		var m SessionEnd
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, &ProtocolError{Reason: err.Error()}
		}
		return m, nil
	case TypeSessionResume:
		var m SessionResume
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, &ProtocolError{Reason: err.Error()}
		}
		return m, nil
	case TypePing:
		var m Ping
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, &ProtocolError{Reason: err.Error()}
		}
		return m, nil
	default:
		return nil, &ProtocolError{Reason: "unrecognized type: " + env.Type}
	}
}

// Encode marshals a Server -> Client message. Callers pass one of the
// structs defined above with Type already set.
func Encode(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}
