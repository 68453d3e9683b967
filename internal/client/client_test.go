package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

// wsServer runs handle for every incoming connection.
func wsServer(t *testing.T, handle func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRequestTimeout(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		// Read and never reply.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := Dial(wsURL(srv))
	require.NoError(t, err)
	defer c.Close()
	c.SetTimeout(50 * time.Millisecond)

	_, err = c.Request("ping", nil)
	assert.ErrorIs(t, err, ErrRequestTimeout)
}

func TestRequestCorrelation(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			// Echo the request data back under the same id.
			if err := conn.WriteJSON(envelope{Type: env.Type, ID: env.ID, Data: env.Data}); err != nil {
				return
			}
		}
	})

	c, err := Dial(wsURL(srv))
	require.NoError(t, err)
	defer c.Close()

	raw, err := c.Request("echo", map[string]string{"hello": "world"})
	require.NoError(t, err)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "world", resp["hello"])
}

func TestErrorEnvelopeBecomesError(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			data, _ := json.Marshal(map[string]string{"message": "no such thing"})
			if err := conn.WriteJSON(envelope{Type: "error", ID: env.ID, Data: data}); err != nil {
				return
			}
		}
	})

	c, err := Dial(wsURL(srv))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Request("whatever", nil)
	require.Error(t, err)
	assert.Equal(t, "no such thing", err.Error())
}

func TestNotificationsDelivered(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		data, _ := json.Marshal(map[string]string{"producerId": "p1"})
		_ = conn.WriteJSON(envelope{Type: "newProducer", Data: data})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := Dial(wsURL(srv))
	require.NoError(t, err)
	defer c.Close()

	select {
	case n := <-c.Notifications():
		assert.Equal(t, "newProducer", n.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("notification never arrived")
	}
}

func TestCloseFailsPending(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := Dial(wsURL(srv))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Request("ping", nil)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request never failed")
	}
}
