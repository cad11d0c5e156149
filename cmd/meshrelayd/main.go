package main

import (
	"flag"

	"github.com/matheus3301/meshchat/internal/relayd"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "path to a TOML relay config (optional)")
	flag.Parse()

	app := fx.New(
		relayd.Module(relayd.Params{ConfigPath: *configFlag}),
	)

	app.Run()
}
