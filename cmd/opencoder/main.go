// ABOUTME: Entry point for the opencoder CLI
// ABOUTME: Connects to opencode agent servers running in Coder workspaces

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time.
var version = "dev"

func usage() {
	fmt.Println("Usage: opencoder <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                   Run the connection manager and local API")
	fmt.Println("  workspaces              List workspaces and their agent server endpoints")
	fmt.Println("  watch <workspace>       Connect to a workspace and print its events")
	fmt.Println("  login <url> [token]     Save a Coder session (token defaults to $CODER_SESSION_TOKEN)")
	fmt.Println("  logout                  Forget the saved session")
	fmt.Println("  version                 Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "workspaces":
		err = runWorkspaces(ctx)
	case "watch":
		err = runWatch(ctx, os.Args[2:])
	case "login":
		err = runLogin(ctx, os.Args[2:])
	case "logout":
		err = runLogout(ctx)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
