package eth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsTestServer accepts connections, answers one eth_subscribe per connection
// and pushes a single log notification tagged with the connection number. The
// first connection is dropped right after delivering its log.
type wsTestServer struct {
	srv *httptest.Server

	mu    sync.Mutex
	conns int
}

func newWSTestServer(t *testing.T) *wsTestServer {
	s := &wsTestServer{}
	upgrader := websocket.Upgrader{}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req struct {
			ID     int    `json:"id"`
			Method string `json:"method"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Method != "eth_subscribe" {
			t.Errorf("expected eth_subscribe, got %q", req.Method)
			return
		}

		s.mu.Lock()
		s.conns++
		n := s.conns
		s.mu.Unlock()

		subID := fmt.Sprintf("0xsub%d", n)
		conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  subID,
		})

		// Give the client time to register the handler for the new
		// subscription id before the first push arrives.
		time.Sleep(100 * time.Millisecond)

		conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "eth_subscription",
			"params": map[string]interface{}{
				"subscription": subID,
				"result": map[string]interface{}{
					"address":         "0x0000000000000000000000000000000000000001",
					"topics":          []string{"0xaa"},
					"data":            "0x",
					"blockNumber":     "0x1",
					"transactionHash": fmt.Sprintf("0xtx%d", n),
					"logIndex":        "0x0",
				},
			},
		})

		if n == 1 {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))

	return s
}

func (s *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsTestServer) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func TestWSClientReconnectsAndResubscribes(t *testing.T) {
	srv := newWSTestServer(t)
	defer srv.srv.Close()

	ws := NewWSClient(srv.url(), discardLogger())
	ws.reconnectDelay = 10 * time.Millisecond
	if err := ws.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer ws.Disconnect()

	got := make(chan string, 4)
	_, err := ws.SubscribeLogs(LogFilter{Address: "0x0000000000000000000000000000000000000001"}, func(l *LogNotification) error {
		got <- l.TransactionHash
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	waitFor := func(want string) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case tx := <-got:
				if tx == want {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for log %s", want)
			}
		}
	}

	waitFor("0xtx1")

	// The server drops the first connection after its log. The second log
	// only arrives if the client redialed and re-armed the subscription
	// under the new subscription id.
	waitFor("0xtx2")

	if n := srv.connections(); n < 2 {
		t.Fatalf("expected a second connection after the drop, got %d", n)
	}
}
