// Package notify sends a short report of each collection run to a Telegram
// chat.
package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"reddit-nlp/ranker"
)

// Report summarizes one run.
type Report struct {
	RunID       string
	Subreddit   string
	Requested   int
	Threads     int
	Entries     int
	CacheHit    bool
	Calls       int
	Outages     int
	Skipped     int
	Elapsed     time.Duration
	Status      string
	Err         error
	OutputPath  string
	TopEntities []ranker.RankedEntity
}

// FormatRunReport renders r as Telegram HTML.
func FormatRunReport(r *Report) string {
	var sb strings.Builder

	icon := "✅"
	switch r.Status {
	case "failed":
		icon = "❌"
	case "cancelled":
		icon = "⏹️"
	}
	fmt.Fprintf(&sb, "%s <b>r/%s</b> run %s\n\n", icon, html.EscapeString(r.Subreddit), html.EscapeString(r.Status))

	source := "fetched"
	if r.CacheHit {
		source = "reused from cache"
	}
	fmt.Fprintf(&sb, "🧵 %s threads, %s entries (%s, requested %s)\n",
		humanize.Comma(int64(r.Threads)), humanize.Comma(int64(r.Entries)), source, humanize.Comma(int64(r.Requested)))
	fmt.Fprintf(&sb, "🔎 %s NLP calls, %s outages, %s skipped\n",
		humanize.Comma(int64(r.Calls)), humanize.Comma(int64(r.Outages)), humanize.Comma(int64(r.Skipped)))
	fmt.Fprintf(&sb, "⏱️ %s\n", formatElapsed(r.Elapsed))

	if r.OutputPath != "" {
		fmt.Fprintf(&sb, "💾 <code>%s</code>\n", html.EscapeString(r.OutputPath))
	}
	if r.Err != nil {
		fmt.Fprintf(&sb, "\n<i>%s</i>\n", html.EscapeString(r.Err.Error()))
	}

	if len(r.TopEntities) > 0 {
		sb.WriteString("\n📊 Top entities:\n")
		for i, e := range r.TopEntities {
			fmt.Fprintf(&sb, "%d. %s <i>%s</i> (%d mentions, sentiment %+.2f)\n",
				i+1, html.EscapeString(e.Name), html.EscapeString(strings.ToLower(e.Type)), e.Mentions, e.Sentiment)
		}
	}

	sb.WriteString("\n<code>" + html.EscapeString(r.RunID) + "</code>")
	return sb.String()
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	start := time.Time{}
	rel := strings.TrimSpace(humanize.RelTime(start, start.Add(d), "", ""))
	return fmt.Sprintf("%s (%s)", rel, d.Round(time.Second))
}

// Sender is the subset of the Telegram bot API used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers run reports to one chat.
type Notifier struct {
	sender Sender
	chatID int64
}

// Option configures the Telegram client built by NewTelegram.
type Option func(*telegramOptions)

type telegramOptions struct {
	endpoint   string
	httpClient *http.Client
}

// WithAPIEndpoint sets the bot API endpoint format (for testing). It takes
// the token and method name, like tgbotapi.APIEndpoint.
func WithAPIEndpoint(endpoint string) Option {
	return func(o *telegramOptions) {
		o.endpoint = endpoint
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *telegramOptions) {
		o.httpClient.Timeout = d
	}
}

// NewTelegram authenticates the bot token and returns a Notifier for chatID.
func NewTelegram(token string, chatID int64, opts ...Option) (*Notifier, error) {
	o := &telegramOptions{
		endpoint:   tgbotapi.APIEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(o)
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint, o.httpClient)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return NewNotifier(api, chatID), nil
}

// NewNotifier creates a Notifier on top of an existing sender.
func NewNotifier(sender Sender, chatID int64) *Notifier {
	return &Notifier{sender: sender, chatID: chatID}
}

// Notify sends the formatted report and returns the Telegram message ID.
func (n *Notifier) Notify(ctx context.Context, r *Report) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	msg := tgbotapi.NewMessage(n.chatID, FormatRunReport(r))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	sent, err := n.sender.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send report: %w", err)
	}
	return sent.MessageID, nil
}
