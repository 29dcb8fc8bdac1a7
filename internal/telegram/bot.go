package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ObiAU/mentionwatch/internal/models"
)

// maxChunkRunes keeps each message below Telegram's 4096 character limit
// with room for the header line.
const maxChunkRunes = 3500

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers new messages to a single Telegram chat.
type Notifier struct {
	api      Sender
	chatID   int64
	channel  string
	limiter  *rate.Limiter
	attempts uint
	delay    time.Duration
	logger   zerolog.Logger
}

type Option func(*Notifier)

// WithRate limits sends to perSec messages per second.
func WithRate(perSec int) Option {
	return func(n *Notifier) {
		if perSec > 0 {
			n.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
		}
	}
}

// WithRetry sets how many times a send is attempted and the base delay between attempts.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(n *Notifier) {
		n.attempts = attempts
		n.delay = delay
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// NewBot connects to the Bot API and returns a notifier for destination,
// which is either a numeric chat id or an @channel username.
func NewBot(token, destination string, opts ...Option) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return NewNotifier(api, destination, opts...)
}

func NewNotifier(api Sender, destination string, opts ...Option) (*Notifier, error) {
	n := &Notifier{
		api:      api,
		limiter:  rate.NewLimiter(rate.Limit(1), 1),
		attempts: 3,
		delay:    time.Second,
		logger:   zerolog.Nop(),
	}

	destination = strings.TrimSpace(destination)
	switch {
	case destination == "":
		return nil, errors.New("telegram destination is empty")
	case strings.HasPrefix(destination, "@"):
		n.channel = destination
	default:
		id, err := strconv.ParseInt(destination, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram chat id %q: %w", destination, err)
		}
		n.chatID = id
	}

	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify sends one block per author. Delivery failures are logged and do not
// stop the remaining blocks.
func (n *Notifier) Notify(ctx context.Context, messages models.AccountMessages) {
	n.logger.Info().Int("accounts", len(messages)).Msg("new notification")

	for _, account := range sortedAccounts(messages) {
		bucket := messages[account]
		for _, author := range sortedAuthors(bucket) {
			for _, text := range formatAlertMessages(account, author, bucket[author]) {
				if err := n.sendMessage(ctx, text); err != nil {
					if ctx.Err() != nil {
						return
					}
					n.logger.Error().
						Err(err).
						Str("account", string(account)).
						Str("author", author).
						Msg("failed to send telegram message")
				}
			}
		}
	}
}

func (n *Notifier) sendMessage(ctx context.Context, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	return retry.Do(
		func() error {
			_, err := n.api.Send(n.newMessage(text))
			if err == nil {
				return nil
			}
			var apiErr *tgbotapi.Error
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				n.logger.Warn().Int("retry_after", apiErr.RetryAfter).Msg("telegram rate limited")
				select {
				case <-time.After(time.Duration(apiErr.RetryAfter) * time.Second):
				case <-ctx.Done():
					return retry.Unrecoverable(ctx.Err())
				}
			}
			return err
		},
		retry.Attempts(n.attempts),
		retry.Delay(n.delay),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(attempt uint, err error) {
			n.logger.Info().Uint("attempt", attempt).Err(err).Msg("retrying telegram send")
		}),
		retry.RetryIf(isRetryable),
	)
}

func (n *Notifier) newMessage(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if n.channel != "" {
		msg = tgbotapi.NewMessageToChannel(n.channel, text)
	} else {
		msg = tgbotapi.NewMessage(n.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return msg
}

// isRetryable rejects client errors other than 429; everything else,
// including transport failures, is worth another attempt.
func isRetryable(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return true
		}
		return apiErr.Code < 400 || apiErr.Code >= 500
	}
	return true
}

// formatAlertMessages renders the author's entries as one or more HTML
// messages, each headed by the author and the tracked account.
func formatAlertMessages(account models.TrackedAccount, author, text string) []string {
	header := fmt.Sprintf("<b>%s</b> · <i>%s</i>\n\n", html.EscapeString(author), html.EscapeString(string(account)))

	chunks := splitText(text, maxChunkRunes)
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, header+html.EscapeString(chunk))
	}
	return out
}

// splitText cuts s into pieces of at most limit runes, preferring to break
// at a newline.
func splitText(s string, limit int) []string {
	runes := []rune(s)
	if len(runes) <= limit {
		return []string{s}
	}

	var out []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

func sortedAccounts(messages models.AccountMessages) []models.TrackedAccount {
	out := make([]models.TrackedAccount, 0, len(messages))
	for a := range messages {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedAuthors(bucket models.MessageBucket) []string {
	out := make([]string, 0, len(bucket))
	for a := range bucket {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (n *Notifier) GetName() string {
	return "telegram"
}
