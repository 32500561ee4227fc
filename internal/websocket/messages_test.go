package websocket

import (
	"strings"
	"testing"
)

func TestValidateMessage_StartSession(t *testing.T) {
	v := NewMessageValidator()

	raw := []byte(`{"type":"start_session","scenario":"vmware-migration","voice":"Joanna","sample_rate":16000}`)
	parsed, err := v.ValidateMessage(raw)
	if err != nil {
		t.Fatalf("ValidateMessage failed: %v", err)
	}

	msg, ok := parsed.(*StartSessionMessage)
	if !ok {
		t.Fatalf("expected *StartSessionMessage, got %T", parsed)
	}
	if msg.Scenario != "vmware-migration" || msg.Voice != "Joanna" || msg.SampleRate != 16000 {
		t.Errorf("unexpected fields: %+v", msg)
	}
}

func TestValidateMessage_Rejections(t *testing.T) {
	v := NewMessageValidator()

	cases := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"not json", `{{`, "invalid JSON"},
		{"unknown type", `{"type":"teleport"}`, "unsupported message type"},
		{"missing scenario", `{"type":"start_session","voice":"Joanna"}`, "scenario is required"},
		{"missing voice", `{"type":"start_session","scenario":"vmware-migration"}`, "voice is required"},
		{"sample rate too low", `{"type":"start_session","scenario":"vmware-migration","voice":"Joanna","sample_rate":4000}`, "sample_rate"},
		{"sample rate too high", `{"type":"start_session","scenario":"vmware-migration","voice":"Joanna","sample_rate":96000}`, "sample_rate"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.ValidateMessage([]byte(tc.raw))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q should mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateMessage_EndTurnAndEndSession(t *testing.T) {
	v := NewMessageValidator()

	parsed, err := v.ValidateMessage([]byte(`{"type":"end_turn"}`))
	if err != nil {
		t.Fatalf("end_turn should validate: %v", err)
	}
	if _, ok := parsed.(*EndTurnMessage); !ok {
		t.Errorf("expected *EndTurnMessage, got %T", parsed)
	}

	parsed, err = v.ValidateMessage([]byte(`{"type":"end_session","session_id":"abc"}`))
	if err != nil {
		t.Fatalf("end_session should validate: %v", err)
	}
	msg, ok := parsed.(*EndSessionMessage)
	if !ok {
		t.Fatalf("expected *EndSessionMessage, got %T", parsed)
	}
	if msg.SessionID != "abc" {
		t.Errorf("session_id not parsed: %+v", msg)
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("capacity_exceeded", "too many live sessions")
	if msg.Type != MessageTypeError {
		t.Errorf("unexpected type %s", msg.Type)
	}
	if msg.Code != "capacity_exceeded" || msg.Message == "" {
		t.Errorf("unexpected payload: %+v", msg)
	}
	if msg.Timestamp == "" {
		t.Error("timestamp should be set")
	}
}
