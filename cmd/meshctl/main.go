package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/meshchat/internal/config"
	"github.com/matheus3301/meshchat/internal/ctlclient"
	"github.com/matheus3301/meshchat/internal/device"
	"github.com/matheus3301/meshchat/internal/relayd"
	"github.com/matheus3301/meshchat/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	deviceFlag := flag.String("device", "", "device name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Commands that do not talk to a daemon.
	switch args[0] {
	case "hub-health":
		cmdHubHealth(ctx, args[1:])
		return
	case "use":
		cmdUse(args[1:])
		return
	}

	deviceName := device.Resolve(*deviceFlag)
	if err := device.ValidateName(deviceName); err != nil {
		fatal(err)
	}

	c := ctlclient.New(device.SocketPath(deviceName))
	defer c.Close()

	jsonOut := *jsonFlag
	switch args[0] {
	case "status":
		cmdStatus(ctx, c, jsonOut)
	case "chats":
		cmdChats(ctx, c, jsonOut)
	case "messages":
		requireArgs(args, 2, "messages <peer-id>")
		cmdMessages(ctx, c, args[1], jsonOut)
	case "send":
		requireArgs(args, 3, "send <peer-id> <text...>")
		cmdSend(ctx, c, args[1], strings.Join(args[2:], " "), jsonOut)
	case "read":
		requireArgs(args, 2, "read <peer-id>")
		cmdRead(ctx, c, args[1], jsonOut)
	case "delete":
		cmdDelete(ctx, c, args[1:])
	case "peers":
		cmdPeers(ctx, c, jsonOut)
	case "scan":
		cmdScan(ctx, c, args[1:])
	case "connect":
		requireArgs(args, 2, "connect <peer-id>")
		if err := c.Connect(ctx, args[1]); err != nil {
			fatal(err)
		}
		fmt.Printf("Connection request sent to %s.\n", args[1])
	case "profile":
		cmdProfile(ctx, c, args[1:], jsonOut)
	case "settings":
		cmdSettings(ctx, c, args[1:], jsonOut)
	case "reset":
		cmdReset(ctx, c, args[1:])
	case "identity":
		cmdIdentity(ctx, c, args[1:], jsonOut)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: meshctl [--device <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                         Show daemon and link status")
	fmt.Fprintln(os.Stderr, "  chats                          List conversations")
	fmt.Fprintln(os.Stderr, "  messages <peer-id>             Show one conversation")
	fmt.Fprintln(os.Stderr, "  send <peer-id> <text...>       Send a message")
	fmt.Fprintln(os.Stderr, "  read <peer-id>                 Mark a conversation read")
	fmt.Fprintln(os.Stderr, "  delete [--yes] [--local] <id>  Delete a conversation")
	fmt.Fprintln(os.Stderr, "  peers                          List nearby peers")
	fmt.Fprintln(os.Stderr, "  scan [stop]                    Start or stop scanning")
	fmt.Fprintln(os.Stderr, "  connect <peer-id>              Ask a peer to connect")
	fmt.Fprintln(os.Stderr, "  profile [set <name> <avatar>]  Show or change the profile")
	fmt.Fprintln(os.Stderr, "  settings [set key=value...]    Show or change settings")
	fmt.Fprintln(os.Stderr, "  reset [--yes]                  Clear all chats and settings")
	fmt.Fprintln(os.Stderr, "  identity [--qr]                Show this device's identity")
	fmt.Fprintln(os.Stderr, "  hub-health --addr <host:port>  Query the relay's gRPC health")
	fmt.Fprintln(os.Stderr, "  use <device>                   Set the default device")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: meshctl %s\n", usage)
		os.Exit(1)
	}
}

func cmdStatus(ctx context.Context, c *ctlclient.Client, jsonOut bool) {
	st, err := c.Status(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Device:   %s\n", st.Device)
	fmt.Printf("Link:     %s\n", st.Link)
	if st.Identity != nil {
		fmt.Printf("Identity: %s (%s)\n", st.Identity.Name, st.Identity.ID)
	}
	fmt.Printf("Peers:    %d\n", st.Peers)
	fmt.Printf("Scanning: %v\n", st.Scanning)
	fmt.Printf("Uptime:   %s\n", time.Since(time.UnixMilli(st.StartedAt)).Round(time.Second))
}

func cmdChats(ctx context.Context, c *ctlclient.Client, jsonOut bool) {
	chats, err := c.Chats(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(chats)
		return
	}
	if len(chats) == 0 {
		fmt.Println("No chats.")
		return
	}
	for _, chat := range chats {
		online := "offline"
		if chat.IsOnline {
			online = "online"
		}
		preview := ""
		if chat.LastMessage != nil {
			preview = chat.LastMessage.Content
		}
		fmt.Printf("%-32s %-16s %-7s unread=%-3d %s\n", chat.PeerID, chat.PeerName, online, chat.UnreadCount, preview)
	}
}

func cmdMessages(ctx context.Context, c *ctlclient.Client, peerID string, jsonOut bool) {
	chat, err := c.Chat(ctx, peerID)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(chat)
		return
	}
	for _, m := range chat.Messages {
		who := chat.PeerName
		if m.IsSent {
			who = "me"
		}
		ts := time.UnixMilli(m.Timestamp).Format("15:04:05")
		fmt.Printf("[%s] %-12s %-9s %s\n", ts, who, m.Status, m.Content)
	}
}

func cmdSend(ctx context.Context, c *ctlclient.Client, peerID, text string, jsonOut bool) {
	msg, err := c.Send(ctx, peerID, text)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("Message %s %s.\n", msg.ID, msg.Status)
}

func cmdRead(ctx context.Context, c *ctlclient.Client, peerID string, jsonOut bool) {
	ids, err := c.MarkRead(ctx, peerID)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(ids)
		return
	}
	fmt.Printf("%d message(s) marked read.\n", len(ids))
}

func cmdDelete(ctx context.Context, c *ctlclient.Client, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	yes := fs.Bool("yes", false, "confirm deletion")
	local := fs.Bool("local", false, "do not ask the peer to delete its copy")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: meshctl delete [--yes] [--local] <peer-id>")
		os.Exit(1)
	}
	if !*yes {
		fmt.Fprintln(os.Stderr, "refusing to delete without --yes")
		os.Exit(1)
	}
	if err := c.DeleteChat(ctx, fs.Arg(0), !*local, true); err != nil {
		fatal(err)
	}
	fmt.Println("Chat deleted.")
}

func cmdPeers(ctx context.Context, c *ctlclient.Client, jsonOut bool) {
	peers, err := c.Peers(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(peers)
		return
	}
	if len(peers) == 0 {
		fmt.Println("No peers found.")
		return
	}
	for _, p := range peers {
		state := "gone"
		if p.IsConnected {
			state = "here"
		}
		fmt.Printf("%-32s %-16s %s signal=%.2f %s\n", p.ID, p.Name, p.DeviceID, p.SignalStrength, state)
	}
}

func cmdScan(ctx context.Context, c *ctlclient.Client, args []string) {
	if len(args) > 0 && args[0] == "stop" {
		if err := c.StopScan(ctx); err != nil {
			fatal(err)
		}
		fmt.Println("Scan stopped.")
		return
	}
	if err := c.StartScan(ctx); err != nil {
		fatal(err)
	}
	fmt.Println("Scan started.")
}

func cmdProfile(ctx context.Context, c *ctlclient.Client, args []string, jsonOut bool) {
	if len(args) == 0 {
		p, err := c.Profile(ctx)
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(p)
			return
		}
		fmt.Printf("ID:     %s\n", p.ID)
		fmt.Printf("Name:   %s\n", p.Name)
		fmt.Printf("Avatar: %d\n", p.AvatarIndex)
		return
	}
	if args[0] != "set" || len(args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: meshctl profile [set <name> <avatar>]")
		os.Exit(1)
	}
	avatar, err := strconv.Atoi(args[2])
	if err != nil {
		fatal(fmt.Errorf("avatar must be a number: %w", err))
	}
	p, err := c.UpdateProfile(ctx, args[1], avatar)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(p)
		return
	}
	fmt.Printf("Profile updated: %s (avatar %d)\n", p.Name, p.AvatarIndex)
}

func cmdSettings(ctx context.Context, c *ctlclient.Client, args []string, jsonOut bool) {
	var (
		s   *store.Settings
		err error
	)
	switch {
	case len(args) == 0:
		s, err = c.Settings(ctx)
	case args[0] == "set":
		patch, perr := parseSettingsArgs(args[1:])
		if perr != nil {
			fatal(perr)
		}
		s, err = c.UpdateSettings(ctx, patch)
	default:
		fmt.Fprintln(os.Stderr, "usage: meshctl settings [set key=value...]")
		os.Exit(1)
	}
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(s)
		return
	}
	fmt.Printf("auto-delete:       %v\n", s.AutoDeleteEnabled)
	fmt.Printf("auto-delete-timer: %dm\n", s.AutoDeleteTimer)
	fmt.Printf("notifications:     %v\n", s.NotificationsEnabled)
	fmt.Printf("auto-connect:      %v\n", s.AutoConnect)
}

func cmdReset(ctx context.Context, c *ctlclient.Client, args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	yes := fs.Bool("yes", false, "confirm reset")
	_ = fs.Parse(args)
	if !*yes {
		fmt.Fprintln(os.Stderr, "refusing to clear all data without --yes")
		os.Exit(1)
	}
	if err := c.Reset(ctx, true); err != nil {
		fatal(err)
	}
	fmt.Println("All chats cleared and settings restored.")
}

func cmdIdentity(ctx context.Context, c *ctlclient.Client, args []string, jsonOut bool) {
	fs := flag.NewFlagSet("identity", flag.ExitOnError)
	qr := fs.Bool("qr", false, "render the identity as a QR code")
	_ = fs.Parse(args)

	p, err := c.Profile(ctx)
	if err != nil {
		fatal(err)
	}
	uri := shareURI(p)
	if jsonOut {
		outputJSON(map[string]string{"id": p.ID, "name": p.Name, "uri": uri})
		return
	}
	fmt.Printf("%s (%s)\n%s\n", p.Name, p.ID, uri)
	if *qr {
		art, err := renderQR(uri)
		if err != nil {
			fatal(err)
		}
		fmt.Print("\n" + art)
	}
}

func cmdHubHealth(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("hub-health", flag.ExitOnError)
	addr := fs.String("addr", "", "relay gRPC health address (host:port)")
	_ = fs.Parse(args)
	if *addr == "" {
		fmt.Fprintln(os.Stderr, "usage: meshctl hub-health --addr <host:port>")
		os.Exit(1)
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fatal(fmt.Errorf("dial relay: %w", err))
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: relayd.HealthServiceName})
	if err != nil {
		fatal(err)
	}
	fmt.Println(resp.GetStatus().String())
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		os.Exit(2)
	}
}

func cmdUse(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: meshctl use <device>")
		os.Exit(1)
	}
	if err := device.ValidateName(args[0]); err != nil {
		fatal(err)
	}
	path := device.ConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		cfg = &config.Config{}
	}
	cfg.DefaultDevice = args[0]
	if err := config.Save(path, cfg); err != nil {
		fatal(err)
	}
	fmt.Printf("Default device set to %s.\n", args[0])
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
