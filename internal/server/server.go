// Package server exposes the bot over HTTP. The slash-command and
// Events API endpoints are thin adapters: each translates its platform
// payload into the common (text, actor, channel) tuple and hands it to
// the dispatcher, so neither carries command logic of its own.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/meetbot/internal/bot"
)

// Notifier delivers directives to the chat platform.
type Notifier interface {
	PostPublic(ctx context.Context, channelID, text string) error
	PostPrivate(ctx context.Context, channelID, userID, text string) error
	UploadFile(ctx context.Context, channelID, filename string, content []byte, caption string) error
}

// Server represents the bot's HTTP server.
type Server struct {
	echo       *echo.Echo
	port       int
	dispatcher *bot.Dispatcher
	notifier   Notifier
}

// NewServer creates the HTTP server. signingSecret guards both inbound
// endpoints; an empty secret disables verification (tests only).
func NewServer(port int, dispatcher *bot.Dispatcher, notifier Notifier, signingSecret string) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	server := &Server{
		echo:       e,
		port:       port,
		dispatcher: dispatcher,
		notifier:   notifier,
	}

	server.setupRoutes(signingSecret)

	return server
}

func (s *Server) setupRoutes(signingSecret string) {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	slack := s.echo.Group("/slack")
	if signingSecret != "" {
		slack.Use(verifySignature(signingSecret, time.Now))
	}
	slack.POST("/commands", s.handleSlashCommand)
	slack.POST("/events", s.handleEvent)
}

// Start begins the HTTP server and blocks until interrupted or the
// listener fails. Errors are returned, not fatal-logged, so the
// caller's deferred cleanup still runs.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// handleSlashCommand adapts Slack's form-encoded slash payload. The
// slash name is rewritten into the !-prefixed grammar so "/meeting end"
// and "!meeting end" travel the same path.
func (s *Server) handleSlashCommand(c echo.Context) error {
	name := strings.TrimPrefix(c.FormValue("command"), "/")
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing command")
	}

	ev := bot.Event{
		Text:      strings.TrimSpace("!" + name + " " + c.FormValue("text")),
		ActorID:   c.FormValue("user_id"),
		ChannelID: c.FormValue("channel_id"),
	}
	if ev.ActorID == "" || ev.ChannelID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing user_id or channel_id")
	}

	directives := s.dispatcher.Handle(c.Request().Context(), ev)
	s.deliver(c.Request().Context(), ev, directives)

	return c.NoContent(http.StatusOK)
}

type eventEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Event     struct {
		Type    string `json:"type"`
		Subtype string `json:"subtype"`
		BotID   string `json:"bot_id"`
		User    string `json:"user"`
		Text    string `json:"text"`
		Channel string `json:"channel"`
	} `json:"event"`
}

// handleEvent adapts Events API callbacks. Handling is local store
// work and stays well inside Slack's three-second response deadline,
// so it runs inline.
func (s *Server) handleEvent(c echo.Context) error {
	var envelope eventEnvelope
	if err := json.NewDecoder(c.Request().Body).Decode(&envelope); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event payload")
	}

	switch envelope.Type {
	case "url_verification":
		return c.JSON(http.StatusOK, map[string]string{"challenge": envelope.Challenge})

	case "event_callback":
		event := envelope.Event
		// Bot echoes and message subtypes (edits, joins, bot posts) are
		// not utterances and must not be recorded.
		if event.Type != "message" || event.Subtype != "" || event.BotID != "" || event.User == "" {
			return c.NoContent(http.StatusOK)
		}

		ev := bot.Event{
			Text:      event.Text,
			ActorID:   event.User,
			ChannelID: event.Channel,
		}

		directives := s.dispatcher.Handle(c.Request().Context(), ev)
		s.deliver(c.Request().Context(), ev, directives)

		return c.NoContent(http.StatusOK)
	}

	return c.NoContent(http.StatusOK)
}

// deliver executes directives against the messaging collaborator. A
// failed post or upload is logged and the rest still go out; the store
// mutation behind the directive has already committed.
func (s *Server) deliver(ctx context.Context, ev bot.Event, directives []bot.Directive) {
	for _, directive := range directives {
		var err error
		switch directive.Target {
		case bot.TargetPublic:
			err = s.notifier.PostPublic(ctx, ev.ChannelID, directive.Text)
		case bot.TargetPrivate:
			err = s.notifier.PostPrivate(ctx, ev.ChannelID, ev.ActorID, directive.Text)
		case bot.TargetUpload:
			err = s.notifier.UploadFile(ctx, ev.ChannelID, directive.Filename, directive.Content, directive.Caption)
		}
		if err != nil {
			log.Error().
				Str("channel_id", ev.ChannelID).
				Err(err).
				Msg("Failed to deliver directive")
		}
	}
}
