// Package remote is Wren's network command surface: a small authenticated
// HTTP API plus a websocket state feed, run as its own OS process. Every
// command resolves to exactly one call into the expression, speech, or
// action layer, and those layers are built with remote priority so their
// claims outrank the local loop's.
package remote

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/wrenlabs/go-wren/pkg/actions"
	"github.com/wrenlabs/go-wren/pkg/arbiter"
	"github.com/wrenlabs/go-wren/pkg/expression"
	"github.com/wrenlabs/go-wren/pkg/hub"
	"github.com/wrenlabs/go-wren/pkg/speech"
)

// Command verbs the whitelist can carry.
const (
	CmdExpression = "expression"
	CmdActions    = "actions"
	CmdSay        = "say"
)

func knownCommand(cmd string) bool {
	switch cmd {
	case CmdExpression, CmdActions, CmdSay:
		return true
	}
	return false
}

// Config tunes the command server.
type Config struct {
	// Addr is the listen address.
	Addr string `yaml:"addr" json:"addr"`

	// Token is the bearer token every request must carry. The server
	// refuses to start without one; an open actuator API is worse than
	// no API.
	Token string `yaml:"token" json:"-"`

	// Commands is the whitelist of accepted verbs. Empty means all.
	Commands []string `yaml:"commands" json:"commands"`

	// RateLimit is requests per client per minute.
	RateLimit int `yaml:"rate_limit" json:"rate_limit"`

	// StatePeriod is how often the feed broadcasts a snapshot.
	StatePeriod time.Duration `yaml:"state_period" json:"state_period"`
}

// DefaultConfig returns the serve process defaults. Token has no default.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8090",
		Commands:    []string{CmdExpression, CmdActions, CmdSay},
		RateLimit:   60,
		StatePeriod: 500 * time.Millisecond,
	}
}

// Validate checks the config for values the server cannot run with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("remote config: empty listen address")
	}
	if c.Token == "" {
		return fmt.Errorf("remote config: empty auth token")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("remote config: rate limit must be positive, got %d", c.RateLimit)
	}
	if c.StatePeriod <= 0 {
		return fmt.Errorf("remote config: state period must be positive")
	}
	for _, cmd := range c.Commands {
		if !knownCommand(cmd) {
			return fmt.Errorf("remote config: unknown command %q in whitelist", cmd)
		}
	}
	return nil
}

// allowed reports whether the whitelist admits a verb.
func (c Config) allowed(cmd string) bool {
	if len(c.Commands) == 0 {
		return true
	}
	for _, v := range c.Commands {
		if v == cmd {
			return true
		}
	}
	return false
}

// Server is the remote command process's HTTP and websocket surface.
// Core layers it drives must be constructed with remote priority; the
// server itself never touches a lease.
type Server struct {
	cfg    Config
	app    *fiber.App
	hub    *hub.Hub
	arb    *arbiter.Arbiter
	engine *expression.Engine
	pipe   *speech.Pipeline
	seq    *actions.Sequencer
	logger *slog.Logger
}

// NewServer assembles the app. Engine, pipe, and seq may be nil when the
// matching hardware is absent; their endpoints answer 503. The arbiter is
// required, the status surface is the point of the feed.
func NewServer(cfg Config, arb *arbiter.Arbiter, engine *expression.Engine, pipe *speech.Pipeline, seq *actions.Sequencer, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if arb == nil {
		return nil, fmt.Errorf("remote server: nil arbiter")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		hub:    hub.New("state", logger),
		arb:    arb,
		engine: engine,
		pipe:   pipe,
		seq:    seq,
		logger: logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               "wren-remote",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimit,
		Expiration: time.Minute,
	}))
	app.Use(keyauth.New(keyauth.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health"
		},
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Token)) == 1 {
				return true, nil
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		},
	}))

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/expression", s.requireCommand(CmdExpression, s.handleExpression))
	api.Post("/actions", s.requireCommand(CmdActions, s.handleActions))
	api.Post("/speak", s.requireCommand(CmdSay, s.handleSpeak))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))

	s.app = app
	return s, nil
}

// requireCommand gates a handler behind the whitelist.
func (s *Server) requireCommand(cmd string, h fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.cfg.allowed(cmd) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": fmt.Sprintf("command %q not whitelisted", cmd),
			})
		}
		return h(c)
	}
}

// Start runs the hub, the state feed, and the listener. It blocks until
// the listener fails or Shutdown is called; the background loops stop
// with the context.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	go s.feedLoop(ctx)
	s.logger.Info("remote server listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// feedLoop broadcasts a snapshot to the watchers every period. No
// watchers, no work.
func (s *Server) feedLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hub.ClientCount() == 0 {
				continue
			}
			if err := s.hub.BroadcastJSON(s.snapshot()); err != nil {
				s.logger.Warn("state broadcast failed", "error", err)
			}
		}
	}
}

// handleStateWS attaches one watcher to the feed and pushes it a first
// snapshot so it does not wait a full period for a picture.
func (s *Server) handleStateWS(c *websocket.Conn) {
	client := hub.NewClient(s.hub, c)
	if client == nil {
		c.Close()
		return
	}
	// First line right away; a dead connection just makes the pumps
	// exit and unregister.
	_ = c.WriteJSON(s.snapshot())
	client.Run()
}
