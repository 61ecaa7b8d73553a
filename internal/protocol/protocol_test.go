package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"STATE","protocol_version":"1.0","tick":7}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != TypeState || m.ProtocolVersion != Version {
		t.Fatalf("base = %+v", m)
	}

	if _, err := DecodeBase([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestIsKnownCode(t *testing.T) {
	for _, code := range []string{
		ErrProtoBadRequest,
		ErrAgentNotFound,
		ErrNotConnected,
		ErrAlreadyControlled,
		ErrNotController,
		ErrBadRequest,
		ErrNoPath,
		ErrRestDenied,
		ErrDropDenied,
		ErrInternal,
	} {
		if !IsKnownCode(code) {
			t.Fatalf("%s should be known", code)
		}
	}
	if !IsKnownCode("") {
		t.Fatal("empty code means no error and is always acceptable")
	}
	if IsKnownCode("E_MADE_UP") {
		t.Fatal("unknown code accepted")
	}
}

func TestActMsg_OmitsEmptySections(t *testing.T) {
	b, err := json.Marshal(ActMsg{Type: TypeAct, ProtocolVersion: Version})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"instants", "tasks", "cancel"} {
		if _, ok := m[key]; ok {
			t.Fatalf("empty %q serialized", key)
		}
	}
}
