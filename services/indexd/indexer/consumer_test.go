package indexer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func startFeedServer(t *testing.T, cursors chan<- string, updates []Update) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case cursors <- r.URL.Query().Get("cursor"):
		default:
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		ctx := r.Context()
		for _, update := range updates {
			payload, err := json.Marshal(update)
			if err != nil {
				t.Errorf("marshal update: %v", err)
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "stream complete")
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
}

func newTestConsumer(t *testing.T, endpoint string, ix *Indexer) *Consumer {
	t.Helper()
	consumer, err := NewConsumer(endpoint, ix, time.Second, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	return consumer
}

func TestConsumerAppliesStreamedUpdates(t *testing.T) {
	db := setupTestDB(t)
	ix := newTestIndexer(t, db)

	cursors := make(chan string, 1)
	server := startFeedServer(t, cursors, []Update{
		contributionUpdate(1, "bene1alice", "60", "60"),
		conversionUpdate(2, 1),
	})
	consumer := newTestConsumer(t, wsURL(server), ix)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	connected, err := consumer.consumeOnce(ctx)
	if !connected {
		t.Fatalf("expected a connection, got error %v", err)
	}
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure, got %v", err)
	}

	cursor, err := ix.Cursor()
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cursor != 2 {
		t.Fatalf("unexpected cursor after stream: %d", cursor)
	}
	select {
	case got := <-cursors:
		if got != "0" {
			t.Fatalf("expected initial cursor 0, got %q", got)
		}
	default:
		t.Fatalf("server never saw a cursor parameter")
	}
}

func TestConsumerResumesFromStoredCursor(t *testing.T) {
	db := setupTestDB(t)
	ix := newTestIndexer(t, db)
	if err := ix.Apply(contributionUpdate(3, "bene1alice", "10", "10")); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}

	cursors := make(chan string, 1)
	server := startFeedServer(t, cursors, nil)
	consumer := newTestConsumer(t, wsURL(server), ix)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if connected, err := consumer.consumeOnce(ctx); !connected {
		t.Fatalf("expected a connection, got error %v", err)
	}

	select {
	case got := <-cursors:
		if got != "3" {
			t.Fatalf("expected resume cursor 3, got %q", got)
		}
	default:
		t.Fatalf("server never saw a cursor parameter")
	}
}

func TestNewConsumerRejectsHTTPEndpoint(t *testing.T) {
	db := setupTestDB(t)
	ix := newTestIndexer(t, db)

	_, err := NewConsumer("http://127.0.0.1:8545/ws/events", ix, time.Second, time.Second, nil)
	if err == nil {
		t.Fatalf("expected error for http endpoint")
	}
}
