package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/codepipeline-notifier/internal/message"
)

type fakeSlack struct {
	t        *testing.T
	calls    map[string]int
	posted   []postRequest
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeSlack(t *testing.T) (*fakeSlack, *Client) {
	t.Helper()
	f := &fakeSlack{t: t, calls: map[string]int{}, handlers: map[string]func(http.ResponseWriter, *http.Request){}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer xoxb-test")
		}
		method := r.URL.Path[1:]
		f.calls[method]++
		h, ok := f.handlers[method]
		if !ok {
			t.Errorf("unexpected call to %s", method)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Options{BaseURL: srv.URL, Token: "xoxb-test", BotName: "PipelineBot", BotIcon: ":robot_face:"})
	return f, c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ---- FindChannelID ----

func TestFindChannelID_Paginates(t *testing.T) {
	f, c := newFakeSlack(t)
	f.handlers["conversations.list"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			writeJSON(w, map[string]any{
				"ok":                true,
				"channels":          []map[string]string{{"id": "C1", "name": "general"}},
				"response_metadata": map[string]string{"next_cursor": "page2"},
			})
			return
		}
		writeJSON(w, map[string]any{
			"ok":       true,
			"channels": []map[string]string{{"id": "C2", "name": "builds"}},
		})
	}

	id, err := c.FindChannelID(context.Background(), "#builds")
	require.NoError(t, err)
	require.Equal(t, "C2", id)
	require.Equal(t, 2, f.calls["conversations.list"])
}

func TestFindChannelID_NotFound(t *testing.T) {
	f, c := newFakeSlack(t)
	f.handlers["conversations.list"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "channels": []map[string]string{}})
	}
	_, err := c.FindChannelID(context.Background(), "builds")
	require.Error(t, err)
}

func TestFindChannelID_Override(t *testing.T) {
	c := NewClient(Options{Token: "x", ChannelIDOverride: "C-OVERRIDE"})
	id, err := c.FindChannelID(context.Background(), "anything")
	require.NoError(t, err)
	require.Equal(t, "C-OVERRIDE", id)
}

func TestAPIError(t *testing.T) {
	f, c := newFakeSlack(t)
	f.handlers["conversations.list"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": false, "error": "missing_scope"})
	}
	_, err := c.FindChannelID(context.Background(), "builds")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "conversations.list", apiErr.Method)
	require.Equal(t, "missing_scope", apiErr.Message)
	require.Contains(t, err.Error(), "missing_scope")
}

func TestHTTPError(t *testing.T) {
	f, c := newFakeSlack(t)
	f.handlers["auth.test"] = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}
	_, err := c.BotUserID(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Contains(t, apiErr.Message, "502")
}

// ---- FindMessage ----

func TestFindMessage(t *testing.T) {
	f, c := newFakeSlack(t)
	f.handlers["auth.test"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "user_id": "UBOT"})
	}
	f.handlers["conversations.history"] = func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "C1", r.URL.Query().Get("channel"))
		require.Equal(t, "10", r.URL.Query().Get("limit"))
		writeJSON(w, map[string]any{
			"ok": true,
			"messages": []message.Message{
				{TS: "1.0", User: "UHUMAN", Attachments: []message.Attachment{{Footer: "<https://x|exec-1>"}}},
				{TS: "2.0", User: "UBOT", Attachments: []message.Attachment{{Footer: "<https://x|exec-2>"}}},
				{TS: "3.0", User: "UBOT", Attachments: []message.Attachment{{}, {Footer: "<https://x|exec-1>"}}},
			},
		})
	}

	msg, err := c.FindMessage(context.Background(), "C1", "exec-1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, "3.0", msg.TS)

	msg, err = c.FindMessage(context.Background(), "C1", "exec-unknown")
	require.NoError(t, err)
	require.Nil(t, msg)

	require.Equal(t, 1, f.calls["auth.test"], "bot user id should be cached")
}

// ---- Send / Update ----

func TestSend(t *testing.T) {
	f, c := newFakeSlack(t)
	f.handlers["chat.postMessage"] = func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req postRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.posted = append(f.posted, req)
		writeJSON(w, map[string]any{"ok": true, "ts": "1700000000.000100"})
	}

	attachments := []message.Attachment{{Fields: []message.Field{{Title: "api", Value: "STARTED", Short: true}}, Footer: "<u|exec-1>"}}
	ts, err := c.Send(context.Background(), "C1", attachments)
	require.NoError(t, err)
	require.Equal(t, "1700000000.000100", ts)

	require.Len(t, f.posted, 1)
	require.Equal(t, "C1", f.posted[0].Channel)
	require.Equal(t, "PipelineBot", f.posted[0].Username)
	require.Equal(t, ":robot_face:", f.posted[0].IconEmoji)
	require.Equal(t, attachments, f.posted[0].Attachments)
}

func TestUpdate(t *testing.T) {
	f, c := newFakeSlack(t)
	f.handlers["chat.update"] = func(w http.ResponseWriter, r *http.Request) {
		var req postRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.posted = append(f.posted, req)
		writeJSON(w, map[string]any{"ok": true, "ts": req.TS})
	}

	require.NoError(t, c.Update(context.Background(), "C1", "5.0", []message.Attachment{{Footer: "f"}}))
	require.Equal(t, "5.0", f.posted[0].TS)
}

func TestUpdate_APIError(t *testing.T) {
	f, c := newFakeSlack(t)
	f.handlers["chat.update"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": false, "error": "message_not_found"})
	}
	err := c.Update(context.Background(), "C1", "5.0", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "chat.update", apiErr.Method)
}

func TestMissingToken(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Send(context.Background(), "C1", nil)
	require.Error(t, err)
}
