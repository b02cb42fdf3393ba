// Package server exposes the research pipeline as a single-page web UI
// driven over a websocket.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/xhad/research/pkg/rag"
	"go.uber.org/zap"
)

const (
	DefaultMaxURLs = 3
	DefaultTitle   = "URL Research Assistant"

	MsgProcess = "process"
	MsgQuery   = "query"
	MsgStatus  = "status"
	MsgAnswer  = "answer"
	MsgError   = "error"

	NoURLsMessage      = "Please select at least one URL"
	NotIndexedMessage  = "You must process URLs first."
	EmptyQueryMessage  = "Please enter a question"
	UnknownTypeMessage = "Unknown message type"
)

//go:embed static
var static embed.FS

var indexTemplate = template.Must(template.ParseFS(static, "static/index.html"))

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the UI is served from the same process
	},
}

// Message is the envelope for both directions of the websocket.
type Message struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type ProcessData struct {
	URLs []string `json:"urls"`
}

type AnswerData struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

type Config struct {
	MaxURLs int
	Title   string
	Logger  *zap.Logger
}

type WSServer struct {
	config   Config
	pipeline *rag.Pipeline
	logger   *zap.Logger
}

func NewWSServer(pipeline *rag.Pipeline, config Config) (*WSServer, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if config.MaxURLs <= 0 {
		config.MaxURLs = DefaultMaxURLs
	}
	if config.Title == "" {
		config.Title = DefaultTitle
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &WSServer{
		config:   config,
		pipeline: pipeline,
		logger:   config.Logger,
	}, nil
}

// Handler routes the page, the websocket and the health check.
func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (s *WSServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Title   string
		MaxURLs []int
	}{
		Title:   s.config.Title,
		MaxURLs: make([]int, s.config.MaxURLs),
	}
	for i := range data.MaxURLs {
		data.MaxURLs[i] = i + 1
	}
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("rendering index", zap.Error(err))
	}
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msgType, content string, data any) error {
	msg := Message{Type: msgType, Content: content}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		msg.Data = raw
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	c := &conn{ws: ws}
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("reading message", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn("malformed message", zap.Error(err))
			s.reply(c, MsgError, "Malformed message", nil)
			continue
		}

		s.handleMessage(r.Context(), c, msg)
	}
}

func (s *WSServer) handleMessage(ctx context.Context, c *conn, msg Message) {
	switch msg.Type {
	case MsgProcess:
		s.handleProcess(ctx, c, msg)
	case MsgQuery:
		s.handleQuery(ctx, c, msg)
	default:
		s.reply(c, MsgError, UnknownTypeMessage, nil)
	}
}

func (s *WSServer) handleProcess(ctx context.Context, c *conn, msg Message) {
	var data ProcessData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			s.reply(c, MsgError, "Malformed message", nil)
			return
		}
	}

	urls := SelectURLs(data.URLs, s.config.MaxURLs)
	if len(urls) == 0 {
		s.reply(c, MsgError, NoURLsMessage, nil)
		return
	}

	err := s.pipeline.ProcessURLs(ctx, urls, func(stage rag.Stage) {
		s.reply(c, MsgStatus, stage.String(), nil)
	})
	switch {
	case err == nil:
	case errors.Is(err, rag.ErrNoContent):
		s.reply(c, MsgError, "No content could be extracted from the selected URLs", nil)
	default:
		s.logger.Error("processing urls", zap.Strings("urls", urls), zap.Error(err))
		s.reply(c, MsgError, err.Error(), nil)
	}
}

func (s *WSServer) handleQuery(ctx context.Context, c *conn, msg Message) {
	query := strings.TrimSpace(msg.Content)
	if query == "" {
		s.reply(c, MsgError, EmptyQueryMessage, nil)
		return
	}

	answer, err := s.pipeline.GenerateAnswers(ctx, query)
	if errors.Is(err, rag.ErrIndexNotReady) {
		s.reply(c, MsgError, NotIndexedMessage, nil)
		return
	}
	if err != nil {
		s.logger.Error("answering question", zap.Error(err))
		s.reply(c, MsgError, err.Error(), nil)
		return
	}

	s.reply(c, MsgAnswer, answer.Text, AnswerData{Answer: answer.Text, Sources: answer.Sources})
}

func (s *WSServer) reply(c *conn, msgType, content string, data any) {
	if err := c.send(msgType, content, data); err != nil {
		s.logger.Debug("sending message", zap.String("type", msgType), zap.Error(err))
	}
}

// SelectURLs drops blank entries and keeps at most limit URLs in input order.
func SelectURLs(urls []string, limit int) []string {
	selected := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if len(selected) == limit {
			break
		}
		selected = append(selected, u)
	}
	return selected
}
