package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/PatchLens/go-debug-lens/lens"
	"github.com/PatchLens/go-debug-lens/lens/cmd"
)

func main() {
	log.SetFlags(log.LstdFlags)

	flags, err := cmd.ParseFlags([]cmd.CustomFlag{
		{Name: "type", DefaultValue: lens.EventDump, Usage: "Event to send, values can be: dump (default), log, table, diff", Type: "string"},
		{Name: "file", DefaultValue: "-", Usage: "JSON values to send, - reads stdin", Type: "string"},
		{Name: "message", DefaultValue: "", Usage: "Log message, for -type log", Type: "string"},
		{Name: "level", DefaultValue: string(lens.LevelInfo), Usage: "Log level, for -type log", Type: "string"},
		{Name: "label", DefaultValue: "", Usage: "Label of a table or diff", Type: "string"},
		{Name: "replay", DefaultValue: false, Usage: "Only replay spooled events", Type: "bool"},
	})
	if err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}

	client, err := lens.NewClient(flags.Config)
	if err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}
	err = run(client, flags.Custom)
	if closeErr := client.Close(); closeErr != nil {
		log.Printf("%sClose failed: %v", lens.ErrorLogPrefix, closeErr)
	}
	if err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}
}

func run(client *lens.Client, custom map[string]string) error {
	if custom["replay"] == "true" {
		delivered, err := client.Replay(context.Background())
		log.Printf("Replayed %d spooled events", delivered)
		if err != nil {
			return fmt.Errorf("replay incomplete: %w", err)
		}
		return nil
	}

	values, err := readValues(custom["file"])
	if err != nil {
		return err
	} else if err := send(client, custom, values); err != nil {
		return err
	}
	client.Flush()
	log.Printf("Sent %s event from %d values", custom["type"], len(values))
	return nil
}

func readValues(path string) ([]any, error) {
	var r io.Reader = os.Stdin
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open values failed: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return lens.DecodeOrderedAll(r)
}

func send(client *lens.Client, custom map[string]string, values []any) error {
	switch strings.ToLower(custom["type"]) {
	case lens.EventDump:
		return client.Dump(values...)
	case lens.EventLog:
		return client.Log(lens.Level(custom["level"]), custom["message"], values...)
	case lens.EventTable:
		var rows any = values
		if len(values) == 1 {
			rows = values[0]
		}
		return client.Table(custom["label"], rows)
	case lens.EventDiff:
		if len(values) != 2 {
			return fmt.Errorf("diff needs exactly two values, got %d", len(values))
		}
		return client.Diff(custom["label"], values[0], values[1])
	default:
		return fmt.Errorf("unsupported event type %q", custom["type"])
	}
}
