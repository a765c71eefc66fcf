package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		payload any
	}{
		{"hello", TypeHello, Hello{Client: "streamctl", Version: "dev", ServerURL: "http://localhost:8000", PublishInterval: 250}},
		{"error", TypeError, Error{Code: "SLOW_CONSUMER", Message: "dropped"}},
		{"session", TypeSession, SessionStatus{LoggedIn: true}},
		{"nil payload", TypeView, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := NewEnvelope(tt.msgType, "id-1", tt.payload)
			if err != nil {
				t.Fatalf("NewEnvelope() error = %v", err)
			}
			if env.V != ProtocolVersion || env.Type != tt.msgType || env.MsgID != "id-1" {
				t.Fatalf("unexpected envelope %+v", env)
			}
			if tt.payload == nil && env.Payload != nil {
				t.Fatalf("expected empty payload, got %s", env.Payload)
			}
		})
	}
}

func TestNewEnvelope_MarshalError(t *testing.T) {
	if _, err := NewEnvelope(TypeView, "id", map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestEnvelope_DecodePayload(t *testing.T) {
	exp := time.Date(2026, 1, 7, 13, 0, 0, 0, time.UTC)
	env, err := NewEnvelope(TypeSession, NewMsgID(), SessionStatus{LoggedIn: true, ExpiresAt: &exp, DirectoryFailures: 2})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	var st SessionStatus
	if err := decoded.DecodePayload(&st); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if !st.LoggedIn || st.ExpiresAt == nil || !st.ExpiresAt.Equal(exp) || st.DirectoryFailures != 2 {
		t.Fatalf("unexpected payload %+v", st)
	}

	if err := (Envelope{}).DecodePayload(&st); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestEnvelope_ValidateBasic(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{"valid", Envelope{V: ProtocolVersion, Type: TypeView, MsgID: "m"}, false},
		{"wrong version", Envelope{V: 2, Type: TypeView, MsgID: "m"}, true},
		{"no type", Envelope{V: ProtocolVersion, MsgID: "m"}, true},
		{"no id", Envelope{V: ProtocolVersion, Type: TypeView}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.ValidateBasic()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBasic() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvelope_UnknownFieldsIgnored(t *testing.T) {
	raw := `{"v":1,"type":"view","msg_id":"m","seq":7,"from":"legacy","payload":{"empty":true}}`
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if env.Seq != 7 || env.Type != TypeView {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestNewMsgID(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewMsgID()
		if len(id) != 16 {
			t.Errorf("NewMsgID() length = %d, want 16", len(id))
		}
		if ids[id] {
			t.Errorf("NewMsgID() generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}
