package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/meshchat/internal/daemon"
	"github.com/matheus3301/meshchat/internal/device"
	"go.uber.org/fx"
)

func main() {
	deviceFlag := flag.String("device", "", "device name (overrides config default)")
	hubFlag := flag.String("hub", "", "relay hub base URL (overrides config and MESHCHAT_HUB_URL)")
	flag.Parse()

	deviceName := device.Resolve(*deviceFlag)
	if err := device.ValidateName(deviceName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{DeviceName: deviceName, HubURL: *hubFlag}),
	)

	app.Run()
}
