package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/hqkang/chatvault/internal/chat"
	"github.com/hqkang/chatvault/internal/config"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&chat.Session{}, &chat.Message{}, &chat.ExportJob{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	cfg := config.Config{
		DefaultPageSize: 50,
		MaxPageSize:     200,
		ExportFormat:    "json",
	}
	// no cache, no queue: repo-only mode
	return NewRouter(db, cfg, nil, nil), db
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func envelopeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Code    int            `json:"code"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, w.Body.String())
	}
	if env.Code != 0 {
		t.Fatalf("expected code 0, got %d (%s)", env.Code, env.Message)
	}
	return env.Data
}

func TestMessageRoundTrip(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/chats", gin.H{"model": "test-model"})
	if w.Code != http.StatusOK {
		t.Fatalf("create chat: %d %s", w.Code, w.Body.String())
	}
	chatID, _ := envelopeData(t, w)["chat_id"].(string)
	if chatID == "" {
		t.Fatalf("missing chat_id in response")
	}

	w = doJSON(t, r, http.MethodPost, "/chats/"+chatID+"/messages", gin.H{
		"role": "user", "content": "hello world",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("insert message: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/chats/"+chatID+"/messages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list messages: %d %s", w.Code, w.Body.String())
	}
	data := envelopeData(t, w)
	msgs, _ := data["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if tp, _ := data["total_pages"].(float64); tp != 1 {
		t.Fatalf("expected total_pages 1, got %v", data["total_pages"])
	}

	first := msgs[0].(map[string]any)
	id := int64(first["id"].(float64))

	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/chats/%s/messages/%d", chatID, id), gin.H{
		"content": "edited",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update message: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/chats/%s/messages/%d", chatID, id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete message: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/chats/%s/messages/%d", chatID, id), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("double delete should 404, got %d", w.Code)
	}
}

func TestInsertMessage_NotFoundPaths(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/chats/nope/messages", gin.H{
		"role": "user", "content": "x",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown chat should 404, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/chats", gin.H{})
	chatID, _ := envelopeData(t, w)["chat_id"].(string)

	w = doJSON(t, r, http.MethodPost, "/chats/"+chatID+"/messages", gin.H{
		"role": "user", "content": "x", "after_message_id": 42,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing anchor should 404, got %d %s", w.Code, w.Body.String())
	}
}

func TestExportEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/chats", gin.H{"model": "m"})
	chatID, _ := envelopeData(t, w)["chat_id"].(string)

	w = doJSON(t, r, http.MethodPost, "/chats/"+chatID+"/messages", gin.H{
		"role": "user", "content": "héllo",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("insert: %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/export", gin.H{"chat_ids": []string{chatID}})
	if w.Code != http.StatusOK {
		t.Fatalf("export: %d %s", w.Code, w.Body.String())
	}
	var doc chat.ExportDocument
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(doc.Chats) != 1 || doc.Chats[0].ChatID != chatID {
		t.Fatalf("unexpected export document: %s", w.Body.String())
	}
	if len(doc.Chats[0].Messages) != 1 || doc.Chats[0].Messages[0].Content != "héllo" {
		t.Fatalf("unexpected messages: %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/export", gin.H{"chat_ids": []string{chatID}, "format": "xml"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown format should 400, got %d", w.Code)
	}
}

func TestAsyncExportUnavailableWithoutQueue(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/exports", gin.H{"chat_ids": []string{"c1"}})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a queue, got %d", w.Code)
	}
}

func TestExportDownloadHeaders(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/chats", gin.H{})
	chatID, _ := envelopeData(t, w)["chat_id"].(string)

	w = doJSON(t, r, http.MethodPost, "/export", gin.H{"chat_ids": []string{chatID}})
	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Fatalf("json export content type: %q", got)
	}

	w = doJSON(t, r, http.MethodPost, "/export", gin.H{"chat_ids": []string{chatID}, "format": "jsonl"})
	if w.Code != http.StatusOK {
		t.Fatalf("jsonl export: %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "application/x-ndjson; charset=utf-8" {
		t.Fatalf("jsonl export content type: %q", got)
	}
}
