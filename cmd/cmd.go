// Package cmd provides the corvid CLI commands.
//
// Commands:
//   - chat: interactive terminal chat with the Bubble Tea TUI
//   - ask: one-shot question, answer printed to stdout
//   - ingest: load documents into the knowledge base
//   - remove: delete a document from the knowledge base
//   - list: show recent conversations
//   - migrate: apply database migrations
//
// All commands handle SIGINT/SIGTERM via context cancellation.
package cmd

import (
	"fmt"
	"os"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.1.0"
	GitCommit  = "unknown"
)

// Execute is the entry point for the corvid CLI.
func Execute() error {
	if len(os.Args) < 2 {
		printHelp()
		return nil
	}

	switch os.Args[1] {
	case "chat":
		return runChat()
	case "ask":
		return runAsk(os.Args[2:])
	case "ingest":
		return runIngest(os.Args[2:])
	case "remove":
		return runRemove(os.Args[2:])
	case "list":
		return runList()
	case "migrate":
		return runMigrate()
	case "version", "--version", "-v":
		printVersion()
		return nil
	case "help", "--help", "-h":
		printHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s (see 'corvid help')", os.Args[1])
	}
}

func printVersion() {
	fmt.Printf("corvid %s (%s)\n", AppVersion, GitCommit)
}

func printHelp() {
	fmt.Println("Corvid - retrieval-augmented support assistant")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  corvid chat                Start interactive chat")
	fmt.Println("  corvid ask <question>      Ask one question and exit")
	fmt.Println("  corvid ingest <file>...    Add documents to the knowledge base")
	fmt.Println("  corvid remove <doc-id>     Remove a document from the knowledge base")
	fmt.Println("  corvid list                Show recent conversations")
	fmt.Println("  corvid migrate             Apply database migrations")
	fmt.Println("  corvid version             Show version information")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  ~/.corvid/config.yaml or ./config.yaml, overridable with CORVID_* variables.")
	fmt.Println("  CORVID_API_KEY or OPENAI_API_KEY is required.")
	fmt.Println("  DATABASE_URL overrides the postgres_* settings.")
}
