package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elitevogue/newsbot/internal/metrics"
	"github.com/elitevogue/newsbot/internal/retry"
)

type sent struct {
	method string
	chatID int64
	text   string
	file   string
}

type fakeAPI struct {
	t       *testing.T
	mu      sync.Mutex
	sent    []sent
	updates string
	offsets []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/botTOKEN/")
	f.mu.Lock()
	defer f.mu.Unlock()

	switch method {
	case "getUpdates":
		assert.Equal(f.t, "30", r.URL.Query().Get("timeout"))
		f.offsets = append(f.offsets, r.URL.Query().Get("offset"))
		fmt.Fprintf(w, `{"ok":true,"result":%s}`, f.updates)
	case "sendMessage":
		var body struct {
			ChatID int64  `json:"chat_id"`
			Text   string `json:"text"`
		}
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.sent = append(f.sent, sent{method: method, chatID: body.ChatID, text: body.Text})
		io.WriteString(w, `{"ok":true,"result":{}}`)
	case "sendDocument":
		var name string
		file, hdr, err := r.FormFile("document")
		if assert.NoError(f.t, err) {
			file.Close()
			name = hdr.Filename
		}
		var chatID int64
		fmt.Sscan(r.FormValue("chat_id"), &chatID)
		f.sent = append(f.sent, sent{method: method, chatID: chatID, file: name})
		io.WriteString(w, `{"ok":true,"result":{}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"ok":false,"description":"Not Found"}`)
	}
}

func (f *fakeAPI) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func newTestBot(t *testing.T, trigger TriggerFunc, allowed ...int64) (*Bot, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{t: t, updates: "[]"}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	b := NewBot("TOKEN", filepath.Join(t.TempDir(), "bot.log"), allowed, trigger,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.BaseURL = srv.URL
	b.Retry = retry.RetryConfig{MaxAttempts: 1}
	b.Backoff = time.Millisecond
	return b, api
}

func TestCommand(t *testing.T) {
	assert.Equal(t, "/publish", command("/publish"))
	assert.Equal(t, "/publicar", command("  /Publicar ahora"))
	assert.Equal(t, "/status", command("/status@EliteVogueBot"))
	assert.Equal(t, "", command("   "))
}

func TestHandle_Start(t *testing.T) {
	b, api := newTestBot(t, nil)
	b.Handle(context.Background(), 42, "/start")

	msgs := api.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(42), msgs[0].chatID)
	assert.Contains(t, msgs[0].text, "/publicar")
}

func TestHandle_PublishAliases(t *testing.T) {
	for _, cmd := range []string{"/publish", "/publicar"} {
		runs := 0
		b, api := newTestBot(t, func(ctx context.Context) (string, error) {
			runs++
			return "publicados: 2", nil
		})
		b.Handle(context.Background(), 1, cmd)

		assert.Equal(t, 1, runs, cmd)
		msgs := api.messages()
		require.Len(t, msgs, 2, cmd)
		assert.Contains(t, msgs[0].text, "Ejecutando")
		assert.Equal(t, "✔️ Bot ejecutado.\n\npublicados: 2", msgs[1].text)
	}
}

func TestHandle_PublishError(t *testing.T) {
	b, api := newTestBot(t, func(ctx context.Context) (string, error) {
		return "", errors.New("run already in progress")
	})
	b.Handle(context.Background(), 1, "/publish")

	msgs := api.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].text, "run already in progress")
}

func TestHandle_PublishErrorKeepsSummary(t *testing.T) {
	b, api := newTestBot(t, func(ctx context.Context) (string, error) {
		return "Publicadas: 1", errors.New("save freshness store: disk full")
	})
	b.Handle(context.Background(), 1, "/publicar")

	msgs := api.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].text, "disk full")
	assert.Contains(t, msgs[1].text, "Publicadas: 1")
}

func TestHandle_StatusTailsLog(t *testing.T) {
	b, api := newTestBot(t, nil)

	var lines []string
	for i := 1; i <= 30; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	require.NoError(t, os.WriteFile(b.LogFile, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	b.Handle(context.Background(), 1, "/estado")
	msgs := api.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "line 11\n")
	assert.Contains(t, msgs[0].text, "line 30")
	assert.NotContains(t, msgs[0].text, "line 10\n")
}

func TestHandle_StatusWithoutLog(t *testing.T) {
	b, api := newTestBot(t, nil)
	b.Handle(context.Background(), 1, "/status")

	msgs := api.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "Todavía no hay log")
}

func TestHandle_Logs(t *testing.T) {
	b, api := newTestBot(t, nil)
	require.NoError(t, os.WriteFile(b.LogFile, []byte("hello\n"), 0o644))

	b.Handle(context.Background(), 9, "/logs")
	msgs := api.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sendDocument", msgs[0].method)
	assert.Equal(t, int64(9), msgs[0].chatID)
	assert.Equal(t, "bot.log", msgs[0].file)
}

func TestHandle_UnknownCommand(t *testing.T) {
	b, api := newTestBot(t, nil)
	b.Handle(context.Background(), 1, "hola")

	msgs := api.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "/start")
}

func TestHandle_AllowList(t *testing.T) {
	m := metrics.New()
	b, api := newTestBot(t, nil, 7)
	b.Metrics = m

	b.Handle(context.Background(), 8, "/start")
	assert.Empty(t, api.messages())

	b.Handle(context.Background(), 7, "/start")
	assert.Len(t, api.messages(), 1)
	assert.EqualValues(t, 1, m.GetStats()["control_commands_run"])
}

func TestPollOnce_AdvancesOffset(t *testing.T) {
	b, api := newTestBot(t, nil)
	api.updates = `[
		{"update_id": 10, "message": {"chat": {"id": 3}, "text": "/start"}},
		{"update_id": 11, "edited_message": {"chat": {"id": 3}, "text": "foo"}},
		{"update_id": 12, "message": {"chat": {"id": 3}, "text": ""}}
	]`

	require.NoError(t, b.PollOnce(context.Background()))
	assert.Len(t, api.messages(), 2)

	api.mu.Lock()
	api.updates = "[]"
	api.mu.Unlock()
	require.NoError(t, b.PollOnce(context.Background()))

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []string{"", "13"}, api.offsets)
}

func TestPollOnce_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"ok":false,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	b := NewBot("TOKEN", "", nil, nil, nil)
	b.BaseURL = srv.URL
	err := b.PollOnce(context.Background())
	assert.ErrorContains(t, err, "Unauthorized")
}

func TestRun_StopsOnCancel(t *testing.T) {
	b, _ := newTestBot(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestParseChatIDs(t *testing.T) {
	ids, err := ParseChatIDs(" 1, -100200 ,,")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, -100200}, ids)

	_, err = ParseChatIDs("abc")
	assert.Error(t, err)

	ids, err = ParseChatIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\n"), 0o644))
	lines, err := TailLines(path, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, lines)
}
