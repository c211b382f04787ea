package httpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wrenlabs/go-wren/pkg/actions"
	"github.com/wrenlabs/go-wren/pkg/remote"
)

// API is a client for one robot's remote command server. The zero value
// is not usable; construct with NewAPI.
type API struct {
	base  string
	token string
	hc    *http.Client
}

// NewAPI returns a client for the server at base. A base without a
// scheme is treated as http, so "wren.local:8090" works from the CLI.
// The token rides every request as a bearer credential.
func NewAPI(base, token string) *API {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &API{
		base:  strings.TrimRight(base, "/"),
		token: token,
		hc:    Client,
	}
}

// WithTimeout swaps the underlying client for one with a custom overall
// timeout and returns the API for chaining.
func (a *API) WithTimeout(d time.Duration) *API {
	a.hc = NewClient(d)
	return a
}

// Status fetches one state snapshot.
func (a *API) Status(ctx context.Context) (*remote.StateSnapshot, error) {
	var snap remote.StateSnapshot
	if err := a.do(ctx, http.MethodGet, "/api/status", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Expression asks the robot to adopt the named expression. It returns
// the expression the robot reports after the change lands.
func (a *API) Expression(ctx context.Context, name string) (string, error) {
	var reply struct {
		Expression string `json:"expression"`
	}
	err := a.do(ctx, http.MethodPost, "/api/expression", remote.ExpressionRequest{Name: name}, &reply)
	return reply.Expression, err
}

// Actions runs an action sequence and returns the robot's summary.
func (a *API) Actions(ctx context.Context, tokens []string) (*actions.Summary, error) {
	var sum actions.Summary
	if err := a.do(ctx, http.MethodPost, "/api/actions", remote.ActionsRequest{Tokens: tokens}, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

// Say plays a clip the robot already has, by bank name or path on the
// robot's filesystem. The call blocks until the utterance ends.
func (a *API) Say(ctx context.Context, wavPath, emotion string) error {
	req := remote.SpeakRequest{WAVPath: wavPath, Emotion: emotion}
	return a.do(ctx, http.MethodPost, "/api/speak", req, nil)
}

// SpeakPCM ships raw samples to the robot and blocks until the
// utterance ends.
func (a *API) SpeakPCM(ctx context.Context, pcm []int16, sampleRate int, emotion string) error {
	raw := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	req := remote.SpeakRequest{
		PCMB64:     base64.StdEncoding.EncodeToString(raw),
		SampleRate: sampleRate,
		Emotion:    emotion,
	}
	return a.do(ctx, http.MethodPost, "/api/speak", req, nil)
}

func (a *API) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("httpc: encode %s body: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, body)
	if err != nil {
		return fmt.Errorf("httpc: build %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.hc.Do(req)
	if err != nil {
		return fmt.Errorf("httpc: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httpc: decode %s reply: %w", path, err)
	}
	return nil
}

// StatusError is a non-2xx reply from the robot.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("robot replied %d", e.Code)
	}
	return fmt.Sprintf("robot replied %d: %s", e.Code, e.Message)
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	// A reply that is not our error JSON still surfaces as a bare code.
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

// StateStream is a live feed of state lines from the robot.
type StateStream struct {
	ws *websocket.Conn
}

// WatchState subscribes to the robot's state feed. The caller owns the
// stream and must Close it.
func (a *API) WatchState(ctx context.Context) (*StateStream, error) {
	u, err := url.Parse(a.base)
	if err != nil {
		return nil, fmt.Errorf("httpc: parse base %q: %w", a.base, err)
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws/state"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+a.token)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("httpc: state feed dial (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("httpc: state feed dial: %w", err)
	}
	return &StateStream{ws: ws}, nil
}

// Next blocks until the robot publishes another state line.
func (s *StateStream) Next() (*remote.StateSnapshot, error) {
	var snap remote.StateSnapshot
	if err := s.ws.ReadJSON(&snap); err != nil {
		return nil, fmt.Errorf("httpc: state feed read: %w", err)
	}
	return &snap, nil
}

// Close hangs up the feed.
func (s *StateStream) Close() error {
	return s.ws.Close()
}
