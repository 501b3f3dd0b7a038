package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"

	"ratatoskr/internal/app"
	"ratatoskr/internal/broker"
	"ratatoskr/internal/config"
	"ratatoskr/internal/users"
	"ratatoskr/internal/wire"
	"ratatoskr/pkg/logx"
)

const (
	defaultConfigPath = "/etc/ratatoskr/config.yaml"
	defaultUsersPath  = "/etc/ratatoskr/users.yaml"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	var err error
	switch args[0] {
	case "serve":
		err = runServe(args[1:])
	case "users":
		err = runUsers(args[1:])
	case "send":
		err = runSend(args[1:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: ratatoskr <command> [flags]

commands:
  serve                      run the bridge
  users add|remove|list      manage the authorized user list
  send                       publish a text message onto the out topic
`)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "path to config file (yaml or json)")
	_ = fs.Parse(args)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background())
		return err
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)
	return a.Err()
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runUsers(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: ratatoskr users add|remove|list [flags]")
	}
	action, rest := args[0], args[1:]

	fs := flag.NewFlagSet("users "+action, flag.ExitOnError)
	usersFile := fs.String("users-file", defaultUsersPath, "path to the user list")
	driver := fs.String("driver", "", "user store driver (yaml or sqlite)")

	var (
		systemUser string
		pipeDir    string
		promote    bool
		names      stringList
	)
	switch action {
	case "add":
		fs.StringVar(&systemUser, "system-user", "", "system username (required)")
		fs.StringVar(&pipeDir, "pipe-dir", "", "per-user pipe directory (userpipe backend)")
		fs.BoolVar(&promote, "promote", false, "bind the telegram id on first authorized contact")
		fs.Var(&names, "username", "telegram username to allow (repeatable)")
	case "remove":
		fs.StringVar(&systemUser, "system-user", "", "system username to remove (required)")
	case "list":
	default:
		return fmt.Errorf("unknown users action %q", action)
	}
	_ = fs.Parse(rest)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := users.Open(users.Config{Driver: *driver, Path: *usersFile}, logx.Nop())
	if err != nil {
		return err
	}
	defer store.Close()

	switch action {
	case "add":
		if systemUser == "" {
			return fmt.Errorf("users add: -system-user is required")
		}
		if err := users.Add(ctx, store, systemUser, pipeDir, names, promote); err != nil {
			return err
		}
		fmt.Printf("added %s\n", systemUser)
	case "remove":
		if systemUser == "" {
			return fmt.Errorf("users remove: -system-user is required")
		}
		if err := users.Remove(ctx, store, systemUser); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", systemUser)
	case "list":
		entries, err := users.List(ctx, store)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no users configured")
			return nil
		}
		for _, e := range entries {
			id := "-"
			if e.TelegramUserID != nil {
				id = strconv.FormatInt(*e.TelegramUserID, 10)
			}
			state := "enabled"
			if !e.Enabled {
				state = "disabled"
			}
			fmt.Printf("%-20s id=%-12s %s", e.SystemUser, id, state)
			if e.PromoteOnFirstAuth {
				fmt.Printf(" promote=[%s]", strings.Join(e.AllowedUsernames, ","))
			}
			fmt.Println()
		}
	}
	return nil
}

// runSend publishes one TextMessage envelope on the out topic, where a
// running bridge picks it up. Message text is stdin (when piped) plus
// the positional arguments, newline separated.
func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "path to config file")
	chatID := fs.Int64("chat-id", 0, "target chat id (required, may be negative)")
	parseMode := fs.String("parse-mode", "", "parse mode (HTML, Markdown)")
	threadID := fs.Int("thread-id", 0, "thread id for forum groups")
	_ = fs.Parse(args)

	if *chatID == 0 {
		return fmt.Errorf("send: -chat-id is required")
	}
	text, err := gatherText(fs.Args())
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("send: no message text (pipe stdin or pass it as arguments)")
	}

	cfg, err := loadLenient(*cfgPath)
	if err != nil {
		return err
	}
	if cfg.Broker.Backend != config.BackendKafka && cfg.Broker.Backend != "" {
		return fmt.Errorf("send: only the kafka backend is supported (config has %q)", cfg.Broker.Backend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The bridge consumes the out topic, so this publisher's "in" side
	// is the configured out topic.
	k, err := broker.NewKafka(ctx, broker.KafkaConfig{
		Brokers:     cfg.Broker.Kafka.Brokers,
		GroupID:     cfg.Broker.Kafka.GroupID,
		InTopic:     cfg.OutTopic(),
		OutTopic:    cfg.InTopic(),
		StatusTopic: cfg.StatusTopic(),
	}, logx.NewConsole("WARN"))
	if err != nil {
		return err
	}
	defer k.Close()

	mt, err := wire.NewTagged(wire.KindText, wire.TextMessage{Text: text, ParseMode: *parseMode})
	if err != nil {
		return err
	}
	env := wire.Outbound{
		TraceID:     uuid.NewString(),
		MessageType: mt,
		Timestamp:   time.Now().UTC(),
		Target:      wire.Target{Platform: wire.Platform, ChatID: *chatID},
	}
	if *threadID != 0 {
		env.Target.ThreadID = threadID
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := k.Publish(ctx, strconv.FormatInt(*chatID, 10), payload); err != nil {
		return err
	}
	fmt.Printf("sent to chat %d (trace %s)\n", *chatID, env.TraceID)
	return nil
}

func gatherText(args []string) (string, error) {
	var parts []string
	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if s := strings.TrimRight(string(raw), "\n"); s != "" {
			parts = append(parts, s)
		}
	}
	if len(args) > 0 {
		parts = append(parts, strings.Join(args, " "))
	}
	return strings.Join(parts, "\n"), nil
}

// loadLenient parses the config if present and falls back to pure
// defaults otherwise; send and users management don't need a bot token.
func loadLenient(path string) (*config.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &config.Config{}
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return nil, err
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
