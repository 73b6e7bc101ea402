package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pyroth/qmd/internal/mcp"
	"github.com/pyroth/qmd/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersion()
		return
	}

	// stdout carries the MCP protocol, so everything else goes to stderr
	log.SetOutput(os.Stderr)
	if err := run(); err != nil {
		log.Fatalf("qmd: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := mcp.NewServer(os.Getenv("QMD_DB_PATH"))
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	log.Printf("qmd %s serving MCP on stdio (driver %s, vectors %v)",
		version, storage.DriverName, storage.VectorExtensionAvailable)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
		return nil
	case err := <-done:
		return err
	}
}

func printVersion() {
	fmt.Printf("qmd %s (built %s)\n", version, buildTime)
	fmt.Printf("build mode %s, sqlite driver %s, vector extension %v\n",
		storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable)
}
