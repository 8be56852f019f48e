package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

type failingToken struct{ err error }

func (f failingToken) AccessToken(context.Context) (string, error) { return "", f.err }

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications/"
}

// echoServer accepts token "T1", greets, then echoes every frame back.
func echoServer(t *testing.T, seen *atomic.Value) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			seen.Store([2]string{r.URL.Query().Get("token"), r.Header.Get("Authorization")})
		}
		if r.URL.Query().Get("token") != "T1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteJSON(Message{Type: "notification.created", Payload: json.RawMessage(`{"order":42}`)})
		for {
			op, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(op, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialSendsTokenAndReceives(t *testing.T) {
	var seen atomic.Value
	srv := echoServer(t, &seen)

	conn, err := Dial(context.Background(), Config{URL: wsURL(srv)}, staticToken("T1"))
	require.NoError(t, err)
	defer conn.Close()

	got := seen.Load().([2]string)
	require.Equal(t, "T1", got[0])
	require.Equal(t, "Bearer T1", got[1])

	select {
	case msg := <-conn.Messages():
		require.Equal(t, "notification.created", msg.Type)
		require.JSONEq(t, `{"order":42}`, string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no greeting received")
	}

	require.NoError(t, conn.Send(context.Background(), Message{Type: "chat.message", Payload: json.RawMessage(`"hi"`)}))
	select {
	case msg := <-conn.Messages():
		require.Equal(t, "chat.message", msg.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestDialUnauthorizedDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), Config{URL: wsURL(srv)}, staticToken("stale"))
	require.ErrorIs(t, err, ErrHandshakeUnauthorized)
	require.Equal(t, int32(1), calls.Load())
}

func TestDialWithoutToken(t *testing.T) {
	srv := echoServer(t, nil)

	_, err := Dial(context.Background(), Config{URL: wsURL(srv)}, staticToken(""))
	require.ErrorIs(t, err, ErrNoToken)

	boom := errors.New("store down")
	_, err = Dial(context.Background(), Config{URL: wsURL(srv)}, failingToken{err: boom})
	require.ErrorIs(t, err, boom)

	_, err = Dial(context.Background(), Config{URL: "http://example.test/ws"}, staticToken("T1"))
	require.Error(t, err)
}

func TestCloseEndsMessagesAndRejectsSend(t *testing.T) {
	srv := echoServer(t, nil)

	conn, err := Dial(context.Background(), Config{URL: wsURL(srv)}, staticToken("T1"))
	require.NoError(t, err)
	<-conn.Messages()

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	select {
	case _, ok := <-conn.Messages():
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("messages channel not closed")
	}
	require.ErrorIs(t, conn.Send(context.Background(), Message{Type: "x"}), ErrClosed)
	require.NoError(t, conn.Err())
}
