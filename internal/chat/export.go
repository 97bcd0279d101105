package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ExportDocument is the portable export shape: {"chats": [...]}. Messages are
// listed in display order (order_id ASC, id ASC).
type ExportDocument struct {
	Chats []ExportChat `json:"chats"`
}

type ExportChat struct {
	ChatID       string          `json:"chat_id"`
	Model        string          `json:"model"`
	CreatedAt    time.Time       `json:"created_at"`
	MessageCount int64           `json:"message_count"`
	Messages     []ExportMessage `json:"messages"`
}

type ExportMessage struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	OrderID   float64   `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportWriter serializes a document to a stream.
type ExportWriter func(w io.Writer, doc *ExportDocument) error

// ExportRegistry maps format names to writers.
type ExportRegistry struct {
	mu      sync.RWMutex
	writers map[string]ExportWriter
}

func NewExportRegistry() *ExportRegistry {
	return &ExportRegistry{writers: make(map[string]ExportWriter)}
}

func (r *ExportRegistry) Register(name string, w ExportWriter) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers[name] = w
}

func (r *ExportRegistry) Get(name string) (ExportWriter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.writers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	return w, nil
}

// DefaultExportRegistry registers the built-in formats: "json" (one indented
// document) and "jsonl" (one chat object per line, for large exports).
func DefaultExportRegistry() *ExportRegistry {
	r := NewExportRegistry()
	r.Register("json", WriteJSON)
	r.Register("jsonl", WriteJSONL)
	return r
}

// WriteJSON emits the whole document indented. HTML escaping is off so
// non-ASCII text and tagged-markup content ("<thinking>...") survive
// byte-for-byte readable.
func WriteJSON(w io.Writer, doc *ExportDocument) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteJSONL emits one chat object per line.
func WriteJSONL(w io.Writer, doc *ExportDocument) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range doc.Chats {
		if err := enc.Encode(&doc.Chats[i]); err != nil {
			return err
		}
	}
	return nil
}
