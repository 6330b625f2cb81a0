package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"entityservice/cmd"
	"entityservice/config"
	tasks "entityservice/examples/minimal-service/api"
)

func main() {
	var configPath, port string
	flag.StringVar(&configPath, "config", "", "Config file (default ./config.yaml or ./config/config.yaml)")
	flag.StringVar(&port, "port", "", "Server port, overrides server.port")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if port != "" {
		cfg.Server.Port = port
	}

	app, err := tasks.Setup(cmd.NewBuilder(cfg)).Build(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build application: %v\n", err)
		os.Exit(1)
	}
	if err := app.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
