// ABOUTME: Tests for the compose server HTTP client against httptest servers
// ABOUTME: Covers stream requests, selection-edit streaming, multipart draft saves and history

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-compose/internal/auth"
	"github.com/2389/coven-compose/internal/autosave"
	"github.com/2389/coven-compose/internal/config"
	"github.com/2389/coven-compose/internal/document"
	"github.com/2389/coven-compose/internal/selectionedit"
	"github.com/2389/coven-compose/internal/sse"
)

func newTestClient(t *testing.T, h http.Handler, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Default().Server
	cfg.BaseURL = srv.URL + "/"
	return New(cfg, auth.StaticToken(token), srv.Client(), nil)
}

func TestChatStreamRequest(t *testing.T) {
	c := New(config.ServerConfig{
		BaseURL:        "https://compose.example.com/",
		ChatStreamPath: "/api/chat/stream",
	}, auth.StaticToken("tok"), nil, nil)

	req, err := c.ChatStreamRequest(ChatRequest{
		Message: "Make it punchier",
		Tools:   []string{"edit_content"},
		Context: &ChatContext{PostID: "post_42", Content: "Hello"},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://compose.example.com/api/chat/stream", req.URL)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
	assert.JSONEq(t,
		`{"message":"Make it punchier","tools":["edit_content"],"context":{"post_id":"post_42","content":"Hello"}}`,
		string(req.Body))
}

func TestChatStreamRequest_NoToken(t *testing.T) {
	c := New(config.ServerConfig{BaseURL: "http://x", ChatStreamPath: "/s"}, nil, nil, nil)

	req, err := c.ChatStreamRequest(ChatRequest{Message: "hi", ConversationID: "abc"})
	require.NoError(t, err)

	assert.Empty(t, req.Header.Get("Authorization"))
	assert.JSONEq(t, `{"message":"hi","conversation_id":"abc"}`, string(req.Body))
}

func TestChatStreamRequest_ExpiredToken(t *testing.T) {
	failing := auth.NewExpiryChecked(auth.StaticToken("a.b.c"), 0)
	c := New(config.ServerConfig{BaseURL: "http://x", ChatStreamPath: "/s"}, failing, nil, nil)

	_, err := c.ChatStreamRequest(ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestStreamEdit(t *testing.T) {
	var got selectionedit.Request
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, config.DefaultEditStreamPath, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: edit_chunk\ndata: {\"content\":\"World\"}\n\n")
		fmt.Fprint(w, "event: edit_complete\ndata: {}\n\n")
	}), "tok")

	var mu sync.Mutex
	var events []string
	err := c.StreamEdit(context.Background(), selectionedit.Request{
		FullContent:     "Hello world",
		SelectedText:    "world",
		EditInstruction: "capitalize",
		SelectionStart:  6,
		SelectionEnd:    11,
	}, sse.Handlers{OnEvent: func(eventType string, _ json.RawMessage) {
		mu.Lock()
		events = append(events, eventType)
		mu.Unlock()
	}})
	require.NoError(t, err)

	assert.Equal(t, []string{"edit_chunk", "edit_complete"}, events)
	assert.Equal(t, "world", got.SelectedText)
	assert.Equal(t, 11, got.SelectionEnd)
}

func TestStreamEdit_StatusError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}), "")

	err := c.StreamEdit(context.Background(), selectionedit.Request{}, sse.Handlers{})

	var statusErr *sse.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "rate limited", statusErr.Body)
}

type draftCapture struct {
	path           string
	contentType    string
	content        []string
	existingImages []string
	files          map[string]string
}

func draftServer(t *testing.T, capture *draftCapture, response string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		capture.path = r.URL.Path
		capture.contentType = r.Header.Get("Content-Type")

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		capture.content = r.MultipartForm.Value["content"]
		capture.existingImages = r.MultipartForm.Value["existing_images"]
		capture.files = map[string]string{}
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if !assert.NoError(t, err) {
				continue
			}
			data, _ := io.ReadAll(f)
			f.Close()
			capture.files[fh.Filename] = string(data)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, response)
	})
}

func TestSaveDraft_ContentOnly(t *testing.T) {
	var capture draftCapture
	c := newTestClient(t, draftServer(t, &capture, `{"images":["https://cdn/a.png"]}`), "tok")

	res, err := c.SaveDraft(context.Background(), autosave.Request{
		PostID:         "post_42",
		Content:        "Hello World!",
		ExistingImages: []string{"https://cdn/a.png"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/posts/post_42/draft", capture.path)
	assert.Contains(t, capture.contentType, "multipart/form-data")
	assert.Equal(t, []string{"Hello World!"}, capture.content)
	assert.Empty(t, capture.existingImages, "images must not be sent when unchanged")
	assert.Empty(t, capture.files)
	assert.Equal(t, []string{"https://cdn/a.png"}, res.Images)
}

func TestSaveDraft_WithImages(t *testing.T) {
	var capture draftCapture
	c := newTestClient(t, draftServer(t, &capture,
		`{"id":"post_43","images":["https://cdn/a.png","https://cdn/b.png"]}`), "tok")

	res, err := c.SaveDraft(context.Background(), autosave.Request{
		Content:        "With pictures",
		ImagesChanged:  true,
		Files:          []document.Attachment{{Name: "b.png", Data: []byte("PNGDATA")}},
		ExistingImages: []string{"https://cdn/a.png"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/posts/new/draft", capture.path)
	assert.Equal(t, []string{"https://cdn/a.png"}, capture.existingImages)
	assert.Equal(t, map[string]string{"b.png": "PNGDATA"}, capture.files)
	assert.Equal(t, "post_43", res.ID)
	assert.Len(t, res.Images, 2)
}

func TestSaveDraft_ServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"disk full"}`)
	}), "")

	_, err := c.SaveDraft(context.Background(), autosave.Request{PostID: "p", Content: "x"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "disk full", apiErr.Message)
}

func TestGetHistory(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/abc", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{
			"conversation": {"id": "abc", "title": "Launch post", "created_at": "2026-04-01T09:00:00Z", "updated_at": "2026-04-01T09:05:00Z"},
			"messages": [
				{"id": "m1", "role": "user", "content": "Make it punchier", "timestamp": "2026-04-01T09:00:00Z"},
				{"id": "m2", "role": "assistant", "content": "Sure, here you go!", "timestamp": "2026-04-01T09:00:05Z"}
			],
			"research_cards": [
				{"id": "b1", "query": "launch posts", "mode": "quick", "cards": [{"title": "Tips"}], "created_at": "2026-04-01T09:00:02Z"}
			]
		}`)
	}), "tok")

	h, err := c.GetHistory(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, h)

	conv := h.ToConversation()
	assert.Equal(t, "abc", conv.ID)
	assert.Equal(t, "Launch post", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Sure, here you go!", conv.Messages[1].Content)

	require.Len(t, h.ResearchCards, 1)
	assert.Equal(t, "abc", h.ResearchCards[0].ConversationID)
	assert.Equal(t, "Tips", h.ResearchCards[0].Cards[0].Title)
}

func TestGetHistory_NullCards(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"conversation":{"id":"abc"},"messages":[],"research_cards":null}`)
	}), "")

	h, err := c.GetHistory(context.Background(), "abc")
	require.NoError(t, err)
	assert.Nil(t, h.ResearchCards)
}

func TestGetHistory_NotFound(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), "")

	h, err := c.GetHistory(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, h)
}

func TestGetHistory_EscapesID(t *testing.T) {
	var path string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		http.NotFound(w, r)
	}), "")

	_, err := c.GetHistory(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "/api/conversations/a%2Fb", path)
}
