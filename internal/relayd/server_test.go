package relayd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/matheus3301/meshchat/internal/config"
	"github.com/matheus3301/meshchat/internal/hub"
	"github.com/matheus3301/meshchat/internal/protocol"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.DefaultRelay()
	h := hub.New(hub.NewRegistry(), zap.NewNop())
	s := &Server{hub: h, cfg: &cfg, logger: zap.NewNop()}
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + wsPath
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame any) {
	t.Helper()
	data, err := protocol.Encode(frame)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

// readUntil reads frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.Type) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		if m["type"] == string(want) {
			return m
		}
	}
}

func waitForPeers(t *testing.T, s *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.hub.ConnectedPeers() == n }, 5*time.Second, 10*time.Millisecond)
}

func TestServer_RelaysMessageBetweenSockets(t *testing.T) {
	req := require.New(t)
	s, ts := newTestServer(t)

	// Given two registered sockets
	alice := dial(t, ts)
	bob := dial(t, ts)
	aliceProfile := &protocol.Profile{ID: "alice", Name: "Alice"}
	send(t, alice, protocol.Register{Type: protocol.TypeRegister, Profile: aliceProfile})
	readUntil(t, alice, protocol.TypePeers)
	send(t, bob, protocol.Register{Type: protocol.TypeRegister, Profile: &protocol.Profile{ID: "bob", Name: "Bob"}})
	readUntil(t, bob, protocol.TypePeers)
	waitForPeers(t, s, 2)

	// When Alice sends a message to Bob
	send(t, alice, protocol.OutboundMessage{
		Type:      protocol.TypeMessage,
		To:        "bob",
		Content:   "hello",
		From:      aliceProfile,
		MessageID: "m-1",
	})

	// Then Bob receives it attributed to Alice
	got := readUntil(t, bob, protocol.TypeMessage)
	req.Equal("hello", got["content"])
	req.Equal("m-1", got["messageId"])
	req.Equal("alice", got["from"].(map[string]any)["id"])
	req.NotZero(got["timestamp"])
}

func TestServer_CloseAnnouncesDeparture(t *testing.T) {
	s, ts := newTestServer(t)
	alice := dial(t, ts)
	bob := dial(t, ts)
	send(t, alice, protocol.Register{Type: protocol.TypeRegister, Profile: &protocol.Profile{ID: "alice"}})
	send(t, bob, protocol.Register{Type: protocol.TypeRegister, Profile: &protocol.Profile{ID: "bob"}})
	waitForPeers(t, s, 2)

	require.NoError(t, bob.Close(websocket.StatusNormalClosure, "bye"))

	got := readUntil(t, alice, protocol.TypePeerDisconnected)
	require.Equal(t, "bob", got["peerId"])
	waitForPeers(t, s, 1)
}

func TestServer_HealthAndPeers(t *testing.T) {
	req := require.New(t)
	s, ts := newTestServer(t)
	conn := dial(t, ts)
	send(t, conn, protocol.Register{Type: protocol.TypeRegister, Profile: &protocol.Profile{ID: "solo", Name: "Solo"}})
	waitForPeers(t, s, 1)

	resp, err := http.Get(ts.URL + "/api/health")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
	var health healthResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&health))
	req.Equal("ok", health.Status)
	req.Equal(1, health.ConnectedPeers)

	resp2, err := http.Get(ts.URL + "/api/peers")
	req.NoError(err)
	defer resp2.Body.Close()
	var peers []protocol.Peer
	req.NoError(json.NewDecoder(resp2.Body).Decode(&peers))
	req.Len(peers, 1)
	req.Equal("Solo", peers[0].Name)
	req.True(peers[0].IsConnected)
	req.GreaterOrEqual(peers[0].SignalStrength, 0.5)
}

func TestHealthServer_ReportsServing(t *testing.T) {
	req := require.New(t)
	cfg := config.DefaultRelay()
	cfg.GRPCAddr = "127.0.0.1:0"

	hs, err := NewHealthServer(&cfg, zap.NewNop())
	req.NoError(err)
	go func() { _ = hs.Start() }()
	t.Cleanup(hs.Stop)

	conn, err := grpc.NewClient(hs.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	req.Eventually(func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewHealthServer_DisabledWithoutAddr(t *testing.T) {
	cfg := config.DefaultRelay()
	hs, err := NewHealthServer(&cfg, zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, hs)
	require.NotPanics(t, hs.Stop)
}
