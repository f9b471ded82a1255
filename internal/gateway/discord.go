package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
)

// discordMaxLen is Discord's message length limit.
const discordMaxLen = 2000

// DiscordSink mirrors admitted suggestions into a Discord channel.
type DiscordSink struct {
	token       string
	channelID   string
	session     *discordgo.Session
	connected   bool
	connectedAt time.Time
	lastError   string
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewDiscordSink creates a Discord sink. Connect must be called before use.
func NewDiscordSink(token, channelID string, logger *zap.Logger) *DiscordSink {
	return &DiscordSink{token: token, channelID: channelID, logger: logger}
}

func (s *DiscordSink) Name() string { return "discord" }

// Connect opens the Discord gateway session.
func (s *DiscordSink) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + s.token)
	if err != nil {
		s.setError(fmt.Sprintf("session create: %v", err))
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	if err := session.Open(); err != nil {
		s.setError(fmt.Sprintf("open failed: %v", err))
		return fmt.Errorf("discord open: %w", err)
	}

	s.mu.Lock()
	s.session = session
	s.connected = true
	s.connectedAt = time.Now()
	s.lastError = ""
	s.mu.Unlock()

	s.logger.Info("discord sink connected",
		zap.String("user", session.State.User.Username),
		zap.String("channel", s.channelID))
	return nil
}

func (s *DiscordSink) setError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.connected = false
	s.mu.Unlock()
}

// Present posts the suggestion to the configured channel.
func (s *DiscordSink) Present(_ context.Context, sg activity.Suggestion) error {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()
	if session == nil {
		return fmt.Errorf("discord send: not connected")
	}
	if _, err := session.ChannelMessageSend(s.channelID, discordContent(sg)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

func discordContent(sg activity.Suggestion) string {
	content := FormatText(sg, "**")
	if r := []rune(content); len(r) > discordMaxLen {
		content = string(r[:discordMaxLen-3]) + "..."
	}
	return content
}

// SetState is a no-op; Discord only receives suggestions.
func (s *DiscordSink) SetState(context.Context, State) error { return nil }

// Close shuts down the Discord session.
func (s *DiscordSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.session != nil {
		return s.session.Close()
	}
	return nil
}

// Status reports the connection state.
func (s *DiscordSink) Status() SinkStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := SinkStatus{
		Name:      "discord",
		Connected: s.connected,
		Error:     s.lastError,
	}
	if s.connected {
		t := s.connectedAt
		st.ConnectedAt = &t
		guilds := 0
		if s.session != nil && s.session.State != nil {
			guilds = len(s.session.State.Guilds)
		}
		st.Details = fmt.Sprintf("channel=%s, guilds=%d", s.channelID, guilds)
	}
	return st
}
