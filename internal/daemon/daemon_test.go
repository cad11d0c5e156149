package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/meshchat/internal/bus"
	"github.com/matheus3301/meshchat/internal/config"
	"github.com/matheus3301/meshchat/internal/control"
	"github.com/matheus3301/meshchat/internal/ctlclient"
	"github.com/matheus3301/meshchat/internal/delivery"
	"github.com/matheus3301/meshchat/internal/hub"
	"github.com/matheus3301/meshchat/internal/protocol"
	"github.com/matheus3301/meshchat/internal/relayd"
	"github.com/matheus3301/meshchat/internal/status"
	"github.com/matheus3301/meshchat/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// shortTempDir keeps socket paths under the Unix socket length limit.
func shortTempDir(t *testing.T, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", pattern)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

type closedLink struct{}

func (closedLink) Send(any) error      { return nil }
func (closedLink) IsOpen() bool        { return false }
func (closedLink) State() status.State { return status.Disconnected }

func TestServerSocketLifecycle(t *testing.T) {
	dir := shortTempDir(t, "meshchat-srv-*")
	socketPath := filepath.Join(dir, "d.sock")

	// A stale socket file from a crashed daemon must not block startup.
	if err := os.WriteFile(socketPath, []byte("stale"), 0600); err != nil {
		t.Fatal(err)
	}

	db, err := store.Open(filepath.Join(dir, "meshchat.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	p := delivery.New(db, closedLink{}, bus.New(), nil)
	srv, err := NewServer(Params{DeviceName: "test", SocketPath: socketPath}, control.NewHandler("test", p, closedLink{}, nil), zap.NewNop())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("socket mode = %v, want 0600", info.Mode().Perm())
	}
	if srv.SocketPath() != socketPath {
		t.Errorf("SocketPath() = %q, want %q", srv.SocketPath(), socketPath)
	}

	go func() { _ = srv.Start() }()

	client := ctlclient.New(socketPath)
	defer client.Close()
	st, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Device != "test" || st.Link != status.Disconnected {
		t.Errorf("status = %+v", st)
	}

	srv.Stop(context.Background())
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket still present after Stop: %v", err)
	}
}

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
func TestFxModuleWiring(t *testing.T) {
	if err := fx.ValidateApp(Module(Params{DeviceName: "fxtest"})); err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}

func TestNotifierLogsUserFacingEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	b := bus.New()
	n := NewNotifier(b, zap.New(core))
	n.Start(context.Background())

	b.Emit(bus.KindNotifyMessage, bus.IncomingMessage{PeerID: "p1", PeerName: "Ann", MessageID: "m1", Content: "hi"})
	b.Emit(bus.KindConnectionRequest, protocol.Peer{ID: "p2", Name: "Bob"})
	b.Emit(bus.KindLinkStatusChanged, status.StatusChange{From: status.Disconnected, To: status.Connecting})
	b.Emit(bus.KindChatUpdated, bus.ChatChange{PeerID: "p1"})

	deadline := time.Now().Add(2 * time.Second)
	for logs.Len() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	n.Stop()

	if got := logs.FilterMessage("new message").Len(); got != 1 {
		t.Errorf("new message entries = %d, want 1", got)
	}
	if got := logs.FilterMessage("peer wants to connect").Len(); got != 1 {
		t.Errorf("connection request entries = %d, want 1", got)
	}
	if got := logs.FilterMessage("link state changed").Len(); got != 1 {
		t.Errorf("link change entries = %d, want 1", got)
	}
	if logs.Len() != 3 {
		t.Errorf("total entries = %d, want 3", logs.Len())
	}
}

// startRelay runs a real relay on a loopback port.
func startRelay(t *testing.T) string {
	t.Helper()
	cfg := config.DefaultRelay()
	cfg.ListenAddr = "127.0.0.1:0"
	h := hub.New(hub.NewRegistry(), zap.NewNop())
	srv, err := relayd.NewServer(&cfg, h, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	return "http://" + srv.Addr().(*net.TCPAddr).String()
}

func startDaemon(t *testing.T, base, name, hubURL string) *ctlclient.Client {
	t.Helper()
	socketPath := filepath.Join(base, name+".sock")
	app := fx.New(Module(Params{DeviceName: name, SocketPath: socketPath, HubURL: hubURL}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start %s: %v", name, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Stop(ctx)
	})

	client := ctlclient.New(socketPath)
	t.Cleanup(client.Close)
	return client
}

func waitOpen(t *testing.T, c *ctlclient.Client) *control.StatusResponse {
	t.Helper()
	var st *control.StatusResponse
	require.Eventually(t, func() bool {
		got, err := c.Status(context.Background())
		if err != nil || got.Link != status.Open {
			return false
		}
		st = got
		return true
	}, 5*time.Second, 20*time.Millisecond)
	return st
}

func TestTwoDaemonsExchangeMessages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	base := shortTempDir(t, "meshchat-e2e-*")
	t.Setenv("MESHCHAT_HOME", base)
	hubURL := startRelay(t)

	alice := startDaemon(t, base, "alice", hubURL)
	bob := startDaemon(t, base, "bob", hubURL)

	aliceStatus := waitOpen(t, alice)
	bobStatus := waitOpen(t, bob)
	req.NotNil(aliceStatus.Identity)
	req.NotNil(bobStatus.Identity)
	req.NotEqual(aliceStatus.Identity.ID, bobStatus.Identity.ID)

	// Each side learns about the other through presence broadcasts.
	require.Eventually(t, func() bool {
		peers, err := alice.Peers(ctx)
		if err != nil {
			return false
		}
		for _, p := range peers {
			if p.ID == bobStatus.Identity.ID && p.IsConnected {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	sent, err := alice.Send(ctx, bobStatus.Identity.ID, "hello bob")
	req.NoError(err)
	req.Equal(store.StatusSent, sent.Status)

	var received *store.Chat
	require.Eventually(t, func() bool {
		chat, err := bob.Chat(ctx, aliceStatus.Identity.ID)
		if err != nil || len(chat.Messages) != 1 {
			return false
		}
		received = chat
		return true
	}, 5*time.Second, 20*time.Millisecond)
	req.Equal(sent.ID, received.Messages[0].ID)
	req.Equal("hello bob", received.Messages[0].Content)
	req.Equal(store.StatusDelivered, received.Messages[0].Status)
	req.Equal(1, received.UnreadCount)
	req.Equal(aliceStatus.Identity.Name, received.PeerName)

	ids, err := bob.MarkRead(ctx, aliceStatus.Identity.ID)
	req.NoError(err)
	req.Equal([]string{sent.ID}, ids)

	require.Eventually(t, func() bool {
		chat, err := alice.Chat(ctx, bobStatus.Identity.ID)
		return err == nil && len(chat.Messages) == 1 && chat.Messages[0].Status == store.StatusRead
	}, 5*time.Second, 20*time.Millisecond)

	// Deleting with notification removes the conversation on both sides.
	req.NoError(alice.DeleteChat(ctx, bobStatus.Identity.ID, true, true))
	require.Eventually(t, func() bool {
		chats, err := bob.Chats(ctx)
		return err == nil && len(chats) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSecondDaemonForDeviceFailsOnLock(t *testing.T) {
	base := shortTempDir(t, "meshchat-lock-*")
	t.Setenv("MESHCHAT_HOME", base)

	first := startDaemon(t, base, "solo", "http://127.0.0.1:1")
	_, err := first.Status(context.Background())
	require.NoError(t, err)

	app := fx.New(Module(Params{DeviceName: "solo", SocketPath: filepath.Join(base, "solo2.sock"), HubURL: "http://127.0.0.1:1"}))
	require.ErrorContains(t, app.Err(), `device "solo" already served`)
}
