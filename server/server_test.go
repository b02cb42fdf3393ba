package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
	"github.com/xhad/research/internal/testutil"
	"github.com/xhad/research/pkg/llm"
	"github.com/xhad/research/pkg/processor"
	"github.com/xhad/research/pkg/rag"
	"github.com/xhad/research/pkg/scraper"
	"github.com/xhad/research/pkg/store"
	"github.com/xhad/research/server"
	"go.uber.org/zap/zaptest"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/listing":
			w.Write([]byte(`<html><body><main><p>The loft on Mill Road has two bedrooms and a rooftop deck.</p></main></body></html>`))
		case "/empty":
			w.Write([]byte(`<html><body></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(site.Close)
	return site
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	fetcher, err := scraper.NewWithConfig(scraper.ScraperConfig{RateLimit: 1000})
	require.NoError(t, err)
	splitter, err := processor.NewWithConfig(processor.ProcessorConfig{})
	require.NoError(t, err)

	pipeline, err := rag.New(rag.Config{
		Fetcher:  fetcher,
		Splitter: splitter,
		Factory: func(ctx context.Context) (*rag.Components, error) {
			vectorStore, err := store.NewChromemStore(store.ChromemConfig{Path: t.TempDir()}, testutil.NewHashEmbedder(), nil)
			if err != nil {
				return nil, err
			}
			synthesizer, err := llm.NewSourcesChain(fake.NewFakeLLM([]string{"Two bedrooms.\nSOURCES: https://listing.example, see the listing page"}), llm.ChatConfig{})
			if err != nil {
				return nil, err
			}
			return &rag.Components{Store: vectorStore, Synthesizer: synthesizer}, nil
		},
	})
	require.NoError(t, err)

	srv, err := server.NewWSServer(pipeline, server.Config{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func receive(t *testing.T, conn *websocket.Conn) server.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	var msg server.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func process(urls ...string) map[string]any {
	return map[string]any{"type": server.MsgProcess, "data": map[string]any{"urls": urls}}
}

func query(q string) map[string]any {
	return map[string]any{"type": server.MsgQuery, "content": q}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestIndexPage(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "<title>URL Research Assistant</title>")
	assert.Contains(t, string(body), "Process URLs")
	assert.Equal(t, 3, strings.Count(string(body), `class="url"`))
}

func TestQueryBeforeProcessing(t *testing.T) {
	conn := dial(t, newTestServer(t))

	send(t, conn, query("How many bedrooms?"))
	msg := receive(t, conn)
	assert.Equal(t, server.MsgError, msg.Type)
	assert.Equal(t, server.NotIndexedMessage, msg.Content)
}

func TestProcessWithoutURLs(t *testing.T) {
	conn := dial(t, newTestServer(t))

	send(t, conn, process("", "  "))
	msg := receive(t, conn)
	assert.Equal(t, server.MsgError, msg.Type)
	assert.Equal(t, server.NoURLsMessage, msg.Content)
}

func TestProcessAndQuery(t *testing.T) {
	site := newSite(t)
	conn := dial(t, newTestServer(t))

	listing := site.URL + "/listing"
	send(t, conn, process(listing, ""))

	var statuses []string
	for len(statuses) < 6 {
		msg := receive(t, conn)
		require.Equal(t, server.MsgStatus, msg.Type, msg.Content)
		statuses = append(statuses, msg.Content)
	}
	assert.Equal(t, []string{
		"Initializing Components...",
		"Resetting vector database...",
		"Fetching URLs...",
		"Splitting texts into chunks...",
		"Adding chunks...",
		"Done adding docs to vector database...",
	}, statuses)

	send(t, conn, query("How many bedrooms does the loft have?"))
	msg := receive(t, conn)
	require.Equal(t, server.MsgAnswer, msg.Type, msg.Content)

	var data server.AnswerData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "Two bedrooms.", data.Answer)
	assert.Equal(t, []string{listing}, data.Sources)
}

func TestProcessEmptyPage(t *testing.T) {
	site := newSite(t)
	conn := dial(t, newTestServer(t))

	send(t, conn, process(site.URL+"/empty"))

	var last server.Message
	for {
		last = receive(t, conn)
		if last.Type != server.MsgStatus {
			break
		}
		assert.NotEqual(t, rag.StageDone.String(), last.Content)
	}
	assert.Equal(t, server.MsgError, last.Type)

	send(t, conn, query("anything"))
	msg := receive(t, conn)
	assert.Equal(t, server.NotIndexedMessage, msg.Content)
}

func TestUnknownMessage(t *testing.T) {
	conn := dial(t, newTestServer(t))

	send(t, conn, map[string]any{"type": "dance"})
	msg := receive(t, conn)
	assert.Equal(t, server.MsgError, msg.Type)
	assert.Equal(t, server.UnknownTypeMessage, msg.Content)
}

func TestSelectURLs(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"nil", nil, []string{}},
		{"blanks dropped", []string{"", " https://a.example ", "\t"}, []string{"https://a.example"}},
		{"capped", []string{"https://a", "", "https://b", "https://c", "https://d"}, []string{"https://a", "https://b", "https://c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, server.SelectURLs(tt.input, 3))
		})
	}
}
