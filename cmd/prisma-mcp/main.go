// Command prisma-mcp exposes a running prisma server as MCP tools over
// stdio.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	_ = godotenv.Load()

	apiURL := os.Getenv("PRISMA_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}

	s := server.NewMCPServer(
		"prisma",
		"0.1.0",
		server.WithToolCapabilities(false),
	)
	registerTools(s, newAPIClient(apiURL, os.Getenv("PRISMA_API_KEY")))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
