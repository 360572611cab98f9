package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/jacentio/arbor/client"
	"github.com/jacentio/arbor/item"
)

// connectionFlags locate the server and carry credentials.
type connectionFlags struct {
	addr     string
	login    string
	password string
	encoding string
	timeout  time.Duration
}

func (f *connectionFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.addr, "addr", envOr("ARBOR_ADDR", "localhost:7357"), "server address ($ARBOR_ADDR)")
	flagSet.StringVar(&f.login, "login", envOr("ARBOR_LOGIN", ""), "account login ($ARBOR_LOGIN)")
	flagSet.StringVar(&f.password, "password", envOr("ARBOR_PASSWORD", ""), "account password ($ARBOR_PASSWORD)")
	flagSet.StringVar(&f.encoding, "encoding", "", "body encoding: zstd or lz4 (default: none)")
	flagSet.DurationVar(&f.timeout, "timeout", 30*time.Second, "request timeout")
}

// withClient connects for the duration of fn.
func (f *connectionFlags) withClient(fn func(ctx context.Context, c *client.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	c, err := client.Dial(ctx, f.addr, client.Config{
		Login:    f.login,
		Password: f.password,
		Encoding: f.encoding,
	})
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func listCommand(out io.Writer) *command {
	var (
		conn  connectionFlags
		since uint64
	)
	return &command{
		name:    "list",
		summary: "List the children of an item changed since a seq",
		usage:   "[parent]",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			conn.register(flagSet)
			flagSet.Uint64Var(&since, "since", 0, "only report changes after this seq")
			return flagSet
		},
		run: func(args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("expected at most one parent id")
			}
			var parent string
			if len(args) == 1 {
				parent = args[0]
			}
			return conn.withClient(func(ctx context.Context, c *client.Client) error {
				items, err := c.List(ctx, parent, since)
				if err != nil {
					return err
				}
				return printItems(out, items)
			})
		},
	}
}

func fetchCommand(out io.Writer) *command {
	var conn connectionFlags
	return &command{
		name:    "fetch",
		summary: "Print the full records of items",
		usage:   "<id>...",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
			conn.register(flagSet)
			return flagSet
		},
		run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("expected at least one item id")
			}
			return conn.withClient(func(ctx context.Context, c *client.Client) error {
				items, err := c.Fetch(ctx, args...)
				if err != nil {
					return err
				}
				return printItems(out, items)
			})
		},
	}
}

// itemJSON is the printed form of an item.
type itemJSON struct {
	ID       string         `json:"id"`
	ParentID string         `json:"parent_id,omitempty"`
	Seq      uint64         `json:"seq"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// printItems writes one JSON object per line.
func printItems(out io.Writer, items []item.Item) error {
	enc := json.NewEncoder(out)
	for _, it := range items {
		view := itemJSON{ID: it.ID, ParentID: it.ParentID, Seq: it.Seq}
		if len(it.Fields) > 0 {
			view.Fields = make(map[string]any, len(it.Fields))
			for name, v := range it.Fields {
				view.Fields[name] = v.Interface()
			}
		}
		if err := enc.Encode(view); err != nil {
			return err
		}
	}
	return nil
}
