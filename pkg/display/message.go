// Package display speaks the line protocol of Wren's chest touch panel.
// Each direction carries one JSON object per line. Outbound lines give the
// panel text to show and an expression tag it uses to pick its own icon;
// inbound lines surface touches and the panel's boot announcement. The
// panel renders on its own; this package only moves the lines, and every
// outbound line rides a display link lease.
package display

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the kind of panel line.
type MessageType string

const (
	// Core → panel lines.
	TypeSay        MessageType = "say"        // utterance text while Wren speaks
	TypeExpression MessageType = "expression" // switch the face icon
	TypeStatus     MessageType = "status"     // one status line
	TypeClear      MessageType = "clear"      // blank the panel

	// Panel → core lines.
	TypeTouch MessageType = "touch" // panel touch event
	TypeHello MessageType = "hello" // panel boot announcement
)

// Message is the envelope every panel line uses. Text and Expression cover
// the common outbound lines without a nested payload; anything richer goes
// through Data.
type Message struct {
	Type       MessageType     `json:"type"`
	Text       string          `json:"text,omitempty"`
	Expression string          `json:"expression,omitempty"`
	Ts         int64           `json:"ts,omitempty"` // unix milliseconds
	Data       json.RawMessage `json:"data,omitempty"`
}

// NewMessage wraps a payload in an envelope stamped with the current time.
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
	}
	return &Message{
		Type: msgType,
		Ts:   time.Now().UnixMilli(),
		Data: raw,
	}, nil
}

// ParseData unmarshals the payload into v. A message without a payload
// leaves v untouched.
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded envelope without the line terminator.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage decodes one line into an envelope.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse panel line: %w", err)
	}
	return &msg, nil
}

// NewSay builds the line shown while an utterance plays. The expression tag
// tells the panel which icon to put beside the text.
func NewSay(text, expression string) *Message {
	return &Message{
		Type:       TypeSay,
		Text:       text,
		Expression: expression,
		Ts:         time.Now().UnixMilli(),
	}
}

// NewExpression builds the line that switches the panel's face icon.
func NewExpression(name string) *Message {
	return &Message{
		Type:       TypeExpression,
		Expression: name,
		Ts:         time.Now().UnixMilli(),
	}
}

// NewStatus builds a one-line status notice.
func NewStatus(text string) *Message {
	return &Message{
		Type: TypeStatus,
		Text: text,
		Ts:   time.Now().UnixMilli(),
	}
}

// NewClear builds the line that blanks the panel.
func NewClear() *Message {
	return &Message{
		Type: TypeClear,
		Ts:   time.Now().UnixMilli(),
	}
}

// TouchData locates a touch on the panel.
type TouchData struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Region string `json:"region,omitempty"` // panel-defined hit zone, e.g. "face"
}

// HelloData is the panel's boot announcement.
type HelloData struct {
	Firmware string `json:"firmware,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// NewTouch builds a touch line. The panel simulator sends these; the robot
// side only parses them.
func NewTouch(x, y int, region string) (*Message, error) {
	return NewMessage(TypeTouch, TouchData{X: x, Y: y, Region: region})
}

// NewHello builds the panel's boot announcement.
func NewHello(firmware string, width, height int) (*Message, error) {
	return NewMessage(TypeHello, HelloData{Firmware: firmware, Width: width, Height: height})
}

// GetTouchData parses a touch payload.
func (m *Message) GetTouchData() (*TouchData, error) {
	if m.Type != TypeTouch {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeTouch)
	}
	var data TouchData
	if err := m.ParseData(&data); err != nil {
		return nil, fmt.Errorf("parse touch payload: %w", err)
	}
	return &data, nil
}

// GetHelloData parses a boot announcement payload.
func (m *Message) GetHelloData() (*HelloData, error) {
	if m.Type != TypeHello {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeHello)
	}
	var data HelloData
	if err := m.ParseData(&data); err != nil {
		return nil, fmt.Errorf("parse hello payload: %w", err)
	}
	return &data, nil
}
