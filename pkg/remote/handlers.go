package remote

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/wrenlabs/go-wren/pkg/actions"
	"github.com/wrenlabs/go-wren/pkg/expression"
	"github.com/wrenlabs/go-wren/pkg/speech"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"watchers": s.hub.ClientCount(),
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.snapshot())
}

// ExpressionRequest names the expression to take on.
type ExpressionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleExpression(c *fiber.Ctx) error {
	if s.engine == nil {
		return errJSON(c, fiber.StatusServiceUnavailable, "no expression engine fitted")
	}
	var req ExpressionRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return errJSON(c, fiber.StatusBadRequest, "body must carry an expression name")
	}

	if err := s.engine.SetExpression(c.UserContext(), req.Name); err != nil {
		return coreError(c, err)
	}
	s.logger.Info("remote expression applied", "name", req.Name)
	return c.JSON(fiber.Map{"expression": s.engine.Current()})
}

// ActionsRequest carries the symbolic tokens to sequence.
type ActionsRequest struct {
	Tokens []string `json:"tokens"`
}

func (s *Server) handleActions(c *fiber.Ctx) error {
	if s.seq == nil {
		return errJSON(c, fiber.StatusServiceUnavailable, "no action sequencer fitted")
	}
	var req ActionsRequest
	if err := c.BodyParser(&req); err != nil || len(req.Tokens) == 0 {
		return errJSON(c, fiber.StatusBadRequest, "body must carry action tokens")
	}

	sum := s.seq.Execute(c.UserContext(), actions.Parse(req.Tokens))
	s.logger.Info("remote sequence done", "executed", sum.Executed, "skipped", sum.Skipped)
	return c.JSON(sum)
}

// SpeakRequest carries an utterance: either a WAV known to the serve
// process (sound bank name or path) or raw little-endian PCM16.
type SpeakRequest struct {
	WAVPath    string `json:"wav_path,omitempty"`
	PCMB64     string `json:"pcm_b64,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Emotion    string `json:"emotion,omitempty"`
}

func (s *Server) handleSpeak(c *fiber.Ctx) error {
	var req SpeakRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "unreadable speak request")
	}

	switch {
	case req.WAVPath != "":
		if s.seq == nil {
			return errJSON(c, fiber.StatusServiceUnavailable, "no action sequencer fitted")
		}
		if err := s.seq.Say(c.UserContext(), req.WAVPath, req.Emotion); err != nil {
			return coreError(c, err)
		}
	case req.PCMB64 != "":
		if s.pipe == nil {
			return errJSON(c, fiber.StatusServiceUnavailable, "no speech pipeline fitted")
		}
		if req.SampleRate <= 0 {
			return errJSON(c, fiber.StatusBadRequest, "pcm_b64 needs a positive sample_rate")
		}
		samples, err := pcmFromB64(req.PCMB64)
		if err != nil {
			return errJSON(c, fiber.StatusBadRequest, err.Error())
		}
		if err := s.pipe.Speak(c.UserContext(), samples, req.SampleRate, req.Emotion); err != nil {
			return coreError(c, err)
		}
	default:
		return errJSON(c, fiber.StatusBadRequest, "speak request needs wav_path or pcm_b64")
	}

	s.logger.Info("remote utterance played", "emotion", req.Emotion)
	return c.JSON(fiber.Map{"spoken": true})
}

// pcmFromB64 decodes base64 little-endian PCM16 the way the panel and
// cloud peers ship audio.
func pcmFromB64(enc string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("pcm_b64 is not base64: %v", err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("pcm_b64 carries %d bytes, not a whole number of samples", len(raw))
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples, nil
}

// coreError maps the layers' sentinels onto statuses: unknown names are
// the caller's mistake, busy hardware asks for a retry, anything else is
// the robot's problem.
func coreError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, expression.ErrUnknownExpression),
		errors.Is(err, expression.ErrUnknownGesture),
		errors.Is(err, expression.ErrNoVisual),
		errors.Is(err, speech.ErrNoAudio):
		return errJSON(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, expression.ErrDeferred),
		errors.Is(err, speech.ErrDeferred),
		errors.Is(err, speech.ErrInterrupted):
		return errJSON(c, fiber.StatusConflict, err.Error())
	default:
		return errJSON(c, fiber.StatusInternalServerError, err.Error())
	}
}

func errJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
