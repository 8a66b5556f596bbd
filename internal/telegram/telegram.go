// Package telegram runs the control bot: a long-polling Telegram client that
// triggers runs and reports on the log file.
package telegram

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/elitevogue/newsbot/internal/metrics"
	"github.com/elitevogue/newsbot/internal/retry"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	pollTimeout    = 30
	statusLines    = 20
	maxReply       = 3500
)

const helpText = "👗 *EliteVogue Bot conectado*\n\n" +
	"Comandos disponibles:\n" +
	"/publicar o /publish - Ejecutar el bot ahora\n" +
	"/estado o /status - Ver últimas líneas del log\n" +
	"/logs - Enviar archivo de log completo\n"

// TriggerFunc runs one batch and returns a human readable summary.
type TriggerFunc func(ctx context.Context) (string, error)

// Bot answers control commands from Telegram chats.
type Bot struct {
	Token   string
	BaseURL string
	LogFile string
	Trigger TriggerFunc

	// Allowed restricts which chats may issue commands. Empty allows all.
	Allowed map[int64]bool

	Client  *http.Client
	Retry   retry.RetryConfig
	Backoff time.Duration
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	offset int64
}

func NewBot(token, logFile string, allowed []int64, trigger TriggerFunc, logger *slog.Logger) *Bot {
	b := &Bot{
		Token:   token,
		BaseURL: DefaultBaseURL,
		LogFile: logFile,
		Trigger: trigger,
		Client:  &http.Client{Timeout: (pollTimeout + 5) * time.Second},
		Retry:   retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
		Backoff: 5 * time.Second,
		Logger:  logger,
	}
	if len(allowed) > 0 {
		b.Allowed = make(map[int64]bool, len(allowed))
		for _, id := range allowed {
			b.Allowed[id] = true
		}
	}
	return b
}

// ParseChatIDs parses a comma separated list of chat ids.
func ParseChatIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *message `json:"message"`
	EditedMessage *message `json:"edited_message"`
}

type message struct {
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger().Info("telegram control bot started")
	for {
		if err := b.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger().Warn("telegram poll failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.Backoff):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// PollOnce fetches one batch of updates and handles each of them.
func (b *Bot) PollOnce(ctx context.Context) error {
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(pollTimeout))
	if b.offset > 0 {
		q.Set("offset", strconv.FormatInt(b.offset, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	var updates []update
	if err := b.call(req, &updates); err != nil {
		return fmt.Errorf("getUpdates: %w", err)
	}

	for _, u := range updates {
		b.offset = u.UpdateID + 1
		msg := u.Message
		if msg == nil {
			msg = u.EditedMessage
		}
		if msg == nil || strings.TrimSpace(msg.Text) == "" {
			continue
		}
		b.logger().Info("telegram message", "chat_id", msg.Chat.ID, "text", msg.Text)
		b.Handle(ctx, msg.Chat.ID, msg.Text)
	}
	return nil
}

// Handle dispatches one text command.
func (b *Bot) Handle(ctx context.Context, chatID int64, text string) {
	if len(b.Allowed) > 0 && !b.Allowed[chatID] {
		b.logger().Warn("ignoring command from unlisted chat", "chat_id", chatID)
		return
	}
	if b.Metrics != nil {
		b.Metrics.IncrementControlCommandRun()
	}

	switch command(text) {
	case "/start", "/help":
		b.reply(ctx, chatID, helpText, "Markdown")
	case "/publish", "/publicar":
		b.handlePublish(ctx, chatID)
	case "/status", "/estado":
		b.handleStatus(ctx, chatID)
	case "/logs":
		b.handleLogs(ctx, chatID)
	default:
		b.reply(ctx, chatID, "No entiendo ese comando. Probá con /start.", "")
	}
}

func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd)
}

func (b *Bot) handlePublish(ctx context.Context, chatID int64) {
	if b.Trigger == nil {
		b.reply(ctx, chatID, "❌ La ejecución no está disponible en este proceso.", "")
		return
	}
	b.reply(ctx, chatID, "⏳ Ejecutando bot de moda...", "")
	summary, err := b.Trigger(ctx)
	if err != nil {
		b.logger().Error("triggered run failed", "err", err)
		msg := "❌ Error ejecutando el bot: " + err.Error()
		if summary != "" {
			msg += "\n\n" + summary
		}
		b.reply(ctx, chatID, clip(msg), "")
		return
	}
	if summary == "" {
		summary = "Sin salida."
	}
	b.reply(ctx, chatID, "✔️ Bot ejecutado.\n\n"+clip(summary), "")
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	lines, err := TailLines(b.LogFile, statusLines)
	if errors.Is(err, os.ErrNotExist) {
		b.reply(ctx, chatID, "⚠️ Todavía no hay log (aún no se ejecutó el bot).", "")
		return
	}
	if err != nil {
		b.reply(ctx, chatID, "❌ Error leyendo log: "+err.Error(), "")
		return
	}
	b.reply(ctx, chatID, "📊 Últimas líneas del log:\n\n"+clip(strings.Join(lines, "\n")), "")
}

func (b *Bot) handleLogs(ctx context.Context, chatID int64) {
	if _, err := os.Stat(b.LogFile); err != nil {
		b.reply(ctx, chatID, "⚠️ No existe log todavía.", "")
		return
	}
	if err := b.SendDocument(ctx, chatID, b.LogFile); err != nil {
		b.logger().Error("sendDocument failed", "err", err)
	}
}

// TailLines returns the last n lines of the file at path.
func TailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, sc.Text())
	}
	return ring, sc.Err()
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxReply {
		return s
	}
	return string(r[len(r)-maxReply:])
}

func (b *Bot) reply(ctx context.Context, chatID int64, text, parseMode string) {
	if err := b.SendMessage(ctx, chatID, text, parseMode); err != nil {
		b.logger().Error("sendMessage failed", "chat_id", chatID, "err", err)
	}
}

// SendMessage sends text to a chat, retrying transient failures.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	return retry.WithRetry(ctx, b.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint("sendMessage"), bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		return b.call(req, nil)
	})
}

// SendDocument uploads the file at path to a chat.
func (b *Bot) SendDocument(ctx context.Context, chatID int64, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return retry.WithRetry(ctx, b.Retry, func() error {
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
			return retry.Permanent(err)
		}
		part, err := mw.CreateFormFile("document", filepath.Base(path))
		if err != nil {
			return retry.Permanent(err)
		}
		if _, err := part.Write(data); err != nil {
			return retry.Permanent(err)
		}
		if err := mw.Close(); err != nil {
			return retry.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint("sendDocument"), body)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return b.call(req, nil)
	})
}

func (b *Bot) call(req *http.Request, result any) error {
	resp, err := b.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return fmt.Errorf("telegram status %d: %w", resp.StatusCode, err)
	}
	if !ar.OK {
		err := fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, ar.Description)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}
	if result != nil && len(ar.Result) > 0 {
		if err := json.Unmarshal(ar.Result, result); err != nil {
			return fmt.Errorf("decode telegram result: %w", err)
		}
	}
	return nil
}

func (b *Bot) endpoint(method string) string {
	base := b.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(base, "/"), b.Token, method)
}

func (b *Bot) client() *http.Client {
	if b.Client != nil {
		return b.Client
	}
	return http.DefaultClient
}

func (b *Bot) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}
