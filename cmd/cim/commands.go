package main

import (
	"cim/domain/search"
	"cim/observability"
	"cim/repositories"
	"cim/runtime"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

var errQuit = fmt.Errorf("quit requested")

// commander is the part of the engine the console drives.
type commander interface {
	SendMessage(channel, body string) (*runtime.Handle, error)
	JoinChannel(name string) (*runtime.Handle, error)
	LeaveChannel(name string) (*runtime.Handle, error)
	ChangeNick(username string) (*runtime.Handle, error)
	Who(channel string) (*runtime.Handle, error)
	Stats() observability.StatsSnapshot
}

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, c *console, args string) error
}

var registry = map[string]command{
	"/join": {
		usage: "/join <channel>",
		help:  "join a channel and make it current",
		run: func(_ context.Context, c *console, args string) error {
			if args == "" {
				return fmt.Errorf("usage: /join <channel>")
			}
			if _, err := c.engine.JoinChannel(args); err != nil {
				return err
			}
			c.current = args
			return nil
		},
	},
	"/leave": {
		usage: "/leave [channel]",
		help:  "leave a channel, the current one by default",
		run: func(_ context.Context, c *console, args string) error {
			channel := lo.Ternary(args == "", c.current, args)
			if channel == "" {
				return fmt.Errorf("no current channel")
			}
			if _, err := c.engine.LeaveChannel(channel); err != nil {
				return err
			}
			if channel == c.current {
				c.current = ""
			}
			return nil
		},
	},
	"/nick": {
		usage: "/nick <name>",
		help:  "change your nickname",
		run: func(_ context.Context, c *console, args string) error {
			if args == "" {
				return fmt.Errorf("usage: /nick <name>")
			}
			_, err := c.engine.ChangeNick(args)
			return err
		},
	},
	"/who": {
		usage: "/who",
		help:  "list the members of the current channel",
		run: func(_ context.Context, c *console, _ string) error {
			_, err := c.engine.Who(c.current)
			return err
		},
	},
	"/switch": {
		usage: "/switch <channel>",
		help:  "send following messages to another joined channel",
		run: func(_ context.Context, c *console, args string) error {
			if args == "" {
				return fmt.Errorf("usage: /switch <channel>")
			}
			c.current = args
			fmt.Fprintf(c.out, "now talking in %s\n", args)
			return nil
		},
	},
	"/find": {
		usage: "/find <words> [--channel c] [--from user] [--limit n]",
		help:  "search the local history",
		run: func(ctx context.Context, c *console, args string) error {
			if c.index == nil {
				return fmt.Errorf("history search is disabled")
			}
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			hits, err := c.index.Search(ctx, search.NewSearchQuery(args))
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Fprintln(c.out, "no match")
			}
			for _, hit := range hits {
				fmt.Fprintf(c.out, "%s [%s] %s: %s\n",
					hit.At.Local().Format(time.DateTime), hit.Channel, hit.Sender, hit.Body)
			}
			return nil
		},
	},
	"/stats": {
		usage: "/stats",
		help:  "show traffic counters and client resource usage",
		run: func(_ context.Context, c *console, _ string) error {
			s := c.engine.Stats()
			fmt.Fprintf(c.out, "frames in/out %d/%d, bytes in/out %d/%d\n", s.FramesIn, s.FramesOut, s.BytesIn, s.BytesOut)
			fmt.Fprintf(c.out, "reconnects %d, retransmissions %d, dropped %d, protocol errors %d\n",
				s.Reconnects, s.Retransmissions, s.DroppedCommands, s.ProtocolErrors)
			fmt.Fprintf(c.out, "pid %d (%s), rss %d KiB, cpu %.1f%%\n",
				s.Process.PID, s.Process.Status, s.Process.RSSBytes/1024, s.Process.CPUPercent)
			return nil
		},
	},
	"/quit": {
		usage: "/quit",
		help:  "leave the server",
		run: func(context.Context, *console, string) error {
			return errQuit
		},
	},
}

// Registered apart since it lists the registry itself.
func init() {
	registry["/help"] = command{
		usage: "/help",
		help:  "show this help",
		run: func(_ context.Context, c *console, _ string) error {
			names := lo.Keys(registry)
			slices.Sort(names)
			for _, name := range names {
				fmt.Fprintf(c.out, "  %-55s %s\n", registry[name].usage, registry[name].help)
			}
			return nil
		},
	}
}

// console turns typed lines into engine commands. Anything that is not a
// command is sent to the current channel.
type console struct {
	engine  commander
	index   repositories.IHistoryIndex
	out     io.Writer
	current string
}

func newConsole(engine commander, index repositories.IHistoryIndex, out io.Writer, current string) *console {
	return &console{engine: engine, index: index, out: out, current: current}
}

func (c *console) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		if c.current == "" {
			return fmt.Errorf("join a channel first, see /help")
		}
		_, err := c.engine.SendMessage(c.current, line)
		return err
	}

	name, args, _ := strings.Cut(line, " ")
	cmd, ok := registry[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("unknown command %s, see /help", name)
	}
	return cmd.run(ctx, c, strings.TrimSpace(args))
}
