// Command slick-node runs a single peer of the slick discovery swarm:
// the gossip engine from pkg/slick/gossip plus the read-only
// introspection daemon from internal/daemon. Publish/Discover/Retract
// are in-process Go API calls (slick.Discovery) — this binary only
// starts the swarm participant and exposes its state for operators.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/rattab/slick/internal/daemon"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD)" -o slick-node ./cmd/slick-node
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		runStart(nil)
		return
	}

	switch os.Args[1] {
	case "start":
		runStart(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "nodes":
		runNodes(os.Args[2:])
	case "keys":
		runKeys(os.Args[2:])
	case "watches":
		runWatches(os.Args[2:])
	case "version", "--version":
		fmt.Printf("slick-node %s (%s)\n", version, commit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		osExit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: slick-node [command]")
	fmt.Println()
	fmt.Println("  (no command)     Start the node in the foreground")
	fmt.Println("  start            Start the node in the foreground")
	fmt.Println("  status [--json]  Query a running node's status")
	fmt.Println("  nodes [--json]   Query the membership table")
	fmt.Println("  keys [--json]    Query the key table (presence/ttl only)")
	fmt.Println("  watches [--json] Query active watch counts")
	fmt.Println("  version          Print the build version")
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output as JSON")
	configFlag := fs.String("config", "", "path to config file")
	fs.Parse(args)

	c := daemonClient(*configFlag)

	if *jsonFlag {
		resp, err := c.Status()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			osExit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(resp)
	} else {
		text, err := c.StatusText()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			osExit(1)
		}
		fmt.Print(text)
	}
}

func runNodes(args []string) {
	fs := flag.NewFlagSet("nodes", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output as JSON")
	configFlag := fs.String("config", "", "path to config file")
	fs.Parse(args)

	c := daemonClient(*configFlag)

	if *jsonFlag {
		resp, err := c.Nodes()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			osExit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(resp)
	} else {
		text, err := c.NodesText()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			osExit(1)
		}
		fmt.Print(text)
	}
}

func runKeys(args []string) {
	fs := flag.NewFlagSet("keys", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output as JSON")
	configFlag := fs.String("config", "", "path to config file")
	fs.Parse(args)

	c := daemonClient(*configFlag)

	if *jsonFlag {
		resp, err := c.Keys()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			osExit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(resp)
	} else {
		text, err := c.KeysText()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			osExit(1)
		}
		fmt.Print(text)
	}
}

func runWatches(args []string) {
	fs := flag.NewFlagSet("watches", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output as JSON")
	configFlag := fs.String("config", "", "path to config file")
	fs.Parse(args)

	c := daemonClient(*configFlag)

	if *jsonFlag {
		resp, err := c.Watches()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			osExit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(resp)
	} else {
		text, err := c.WatchesText()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			osExit(1)
		}
		fmt.Print(text)
	}
}

// daemonClient connects to a running slick-node's introspection daemon,
// resolving its socket/cookie paths the same way runStart does.
func daemonClient(configFlag string) *daemon.Client {
	cfg, _, err := loadConfig(configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
	c, err := daemon.NewClient(cfg.Daemon.SocketPath, cookiePathFor(cfg.Daemon.SocketPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
	return c
}
