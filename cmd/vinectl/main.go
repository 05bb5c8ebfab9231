// Command vinectl is the maintenance CLI for vinewatch.
//
// Usage:
//
//	vinectl                       Show help
//	vinectl rules list            List keyword rules
//	vinectl rules add             Add a keyword rule
//	vinectl rules rm              Remove a keyword rule
//	vinectl set [key value]       List or change settings
//	vinectl events                JSONL event journal viewer
//	vinectl stats                 Settings, journal and session summary
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/abelbrown/vinewatch/internal/config"
)

const usage = `vinectl: vinewatch maintenance CLI

Usage:
  vinectl <command> [flags]

Commands:
  rules       list | add | rm keyword rules (hide, highlight, blur)
  set         list settings, or set one: vinectl set <key> <value>
  events      JSONL event journal viewer
  stats       Settings, journal and session summary

Running monitors pick up rule and setting changes within a few seconds.

Environment:
  VINEWATCH_CONFIG   config file (default ~/.vinewatch/config.json)
  VINEWATCH_*        config overrides, as for vinewatch

Run 'vinectl <command> -h' for command-specific help.
`

// cli carries what every subcommand needs.
type cli struct {
	cfg *config.Config
	out io.Writer
}

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		fmt.Print(usage)
		return
	}

	cfg, err := config.Load(os.Getenv("VINEWATCH_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vinectl: %v\n", err)
		os.Exit(1)
	}
	c := &cli{cfg: cfg, out: os.Stdout}

	switch cmd {
	case "rules":
		err = c.rules(args)
	case "set":
		err = c.set(args)
	case "events":
		err = c.events(args)
	case "stats":
		err = c.stats(args)
	default:
		fmt.Fprintf(os.Stderr, "vinectl: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "vinectl %s: %v\n", cmd, err)
		os.Exit(1)
	}
}
