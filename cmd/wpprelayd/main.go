package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/wpprelay/internal/daemon"
	"github.com/matheus3301/wpprelay/internal/paths"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.wpprelay/config.toml)")
	instanceFlag := flag.String("instance", "", "instance name (default \"main\")")
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	instance := paths.ResolveInstance(*instanceFlag, os.LookupEnv)
	if err := paths.ValidateName(instance); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			Instance:   instance,
			ConfigPath: paths.ResolveConfig(*configFlag, os.LookupEnv),
			ListenAddr: *listenFlag,
		}),
	)

	app.Run()
}
