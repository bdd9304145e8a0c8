// Package telegram relays Max messages into a Telegram chat through a bot.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/onnwee/max-bridge/maxapi"
)

// Sink posts plain text messages to one chat.
type Sink struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	channel string
}

// New authenticates the bot against the public Bot API.
func New(token, chatID string) (*Sink, error) {
	return NewWithEndpoint(token, chatID, tgbotapi.APIEndpoint, &http.Client{})
}

// NewWithEndpoint is New against a custom API endpoint format
// ("https://host/bot%s/%s").
func NewWithEndpoint(token, chatID, endpoint string, hc *http.Client) (*Sink, error) {
	s := &Sink{}
	if err := s.setChat(chatID); err != nil {
		return nil, err
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, hc)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	s.bot = bot
	return s, nil
}

// setChat accepts a numeric chat id or an @channel username.
func (s *Sink) setChat(chatID string) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return fmt.Errorf("telegram chat id empty")
	}
	if strings.HasPrefix(chatID, "@") {
		s.channel = chatID
		return nil
	}
	n, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", chatID, err)
	}
	s.chatID = n
	return nil
}

func (s *Sink) Name() string { return "telegram" }

// Send posts m to the chat. The Bot API client has no context support; ctx
// is only checked before the call.
func (s *Sink) Send(ctx context.Context, m maxapi.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var msg tgbotapi.MessageConfig
	if s.channel != "" {
		msg = tgbotapi.NewMessageToChannel(s.channel, FormatText(m))
	} else {
		msg = tgbotapi.NewMessage(s.chatID, FormatText(m))
	}
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// FormatText renders m as "📨 <sender>:\n<text>".
func FormatText(m maxapi.Message) string {
	return "📨 " + m.Sender + ":\n" + m.Text
}
