package display

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "touch message",
			msgType: TypeTouch,
			data:    TouchData{X: 10, Y: 20, Region: "face"},
			wantErr: false,
		},
		{
			name:    "hello message",
			msgType: TypeHello,
			data:    HelloData{Firmware: "wren-panel 1.2", Width: 320, Height: 240},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypeClear,
			data:    nil,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Ts == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestSayCarriesTextAndExpression(t *testing.T) {
	msg := NewSay("hello there", "happy")
	if msg.Type != TypeSay {
		t.Errorf("type = %v, want %v", msg.Type, TypeSay)
	}
	if msg.Text != "hello there" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.Expression != "happy" {
		t.Errorf("expression = %q", msg.Expression)
	}
	if msg.Ts == 0 {
		t.Error("timestamp should be set")
	}
}

func TestTouchRoundTrip(t *testing.T) {
	msg, err := NewTouch(42, 17, "belly")
	if err != nil {
		t.Fatalf("NewTouch() error = %v", err)
	}

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	touch, err := parsed.GetTouchData()
	if err != nil {
		t.Fatalf("GetTouchData() error = %v", err)
	}
	if touch.X != 42 || touch.Y != 17 || touch.Region != "belly" {
		t.Errorf("touch = %+v, want 42/17/belly", touch)
	}
}

func TestGetTouchDataRejectsWrongType(t *testing.T) {
	msg := NewStatus("charging")
	if _, err := msg.GetTouchData(); err == nil {
		t.Error("GetTouchData() on a status message should fail")
	}
}

func TestParseMessageGarbage(t *testing.T) {
	if _, err := ParseMessage([]byte("not json at all")); err == nil {
		t.Error("ParseMessage() should fail on garbage")
	}
}

// The transport frames messages by newline, so an encoded envelope must
// never contain a raw one even when the text does.
func TestBytesStayOnOneLine(t *testing.T) {
	msg := NewSay("line one\nline two", "calm")
	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	if bytes.ContainsRune(raw, '\n') {
		t.Errorf("encoded message contains a raw newline: %q", raw)
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if !strings.Contains(parsed.Text, "\n") {
		t.Errorf("round trip lost the embedded newline: %q", parsed.Text)
	}
}
