package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("panelship %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg)
	logger.Info("starting panelship",
		"version", Version,
		"config", *configPath,
	)

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return exitCode(err)
	}

	if err := server.Start(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		return exitCode(err)
	}

	return ExitSuccess
}

func exitCode(err error) int {
	var sErr *ServerError
	if errors.As(err, &sErr) {
		return sErr.ExitCode
	}
	return ExitConfigError
}
