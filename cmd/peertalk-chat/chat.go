package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/peertalk/peertalk/internal/config"
	"github.com/peertalk/peertalk/internal/transport/posix"
	"github.com/peertalk/peertalk/internal/watchdog"
	"github.com/peertalk/peertalk/pkg/peertalk"
)

const pollInterval = 25 * time.Millisecond

// lastPollNano is written by the poll loop and read by the watchdog's
// health check, the only two goroutines that touch it.
var lastPollNano atomic.Int64

func localName() string {
	if flagName != "" {
		return flagName
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "anonymous"
}

func buildConfig() (peertalk.Config, error) {
	if flagConfig != "" {
		fc, err := config.Load(flagConfig)
		if err != nil {
			return peertalk.Config{}, fmt.Errorf("loading config: %w", err)
		}
		cfg, err := fc.ToPeerTalkConfig()
		if err != nil {
			return peertalk.Config{}, err
		}
		if cfg.LocalName == "" {
			cfg.LocalName = localName()
		}
		if flagPort != 0 {
			cfg.TCPPort = flagPort
		}
		if flagDiscoveryPort != 0 {
			cfg.DiscoveryPort = flagDiscoveryPort
		}
		return cfg, nil
	}
	return peertalk.Config{
		LocalName:           localName(),
		TCPPort:             flagPort,
		DiscoveryPort:       flagDiscoveryPort,
		AutoAccept:          true,
		AutoCleanup:         true,
		EnableFragmentation: true,
	}, nil
}

func runChat() error {
	if flagNoColor {
		color.NoColor = true
	} else if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	level := parseLevel(flagLogLevel)
	if flagConfig != "" && !rootCmd.PersistentFlags().Changed("log-level") {
		level = cfg.LogLevel
	}
	sink, err := peertalk.NewSlogSink(level, cfg.LogFilename)
	if err != nil {
		return fmt.Errorf("opening log sink: %w", err)
	}
	cfg.Log = sink

	adapter := posix.New()
	ctx, err := peertalk.Init(cfg, adapter)
	if err != nil {
		return fmt.Errorf("initializing peertalk: %w", err)
	}
	defer ctx.Shutdown()

	sess := newSession(ctx)
	ctx.SetCallbacks(sess.callbacks())

	if err := ctx.StartListening(0); err != nil {
		return fmt.Errorf("starting listener: %w", err)
	}
	if err := ctx.StartDiscovery(); err != nil {
		return fmt.Errorf("starting discovery: %w", err)
	}

	fmt.Printf("peertalk-chat: %q listening on TCP :%d, discovery on UDP :%d\n",
		cfg.LocalName, ctx.GetListenPort(), ctx.Config().DiscoveryPort)
	fmt.Println("Type /help for commands, plain text to broadcast to every connected peer.")

	gctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-gctx.Done():
		}
	}()

	watchdog.Ready()
	defer watchdog.Stopping()

	checks := []watchdog.HealthCheck{
		{Name: "poll-loop", Check: func() error {
			age := time.Since(time.Unix(0, lastPollNano.Load()))
			if age > 2*time.Second {
				return fmt.Errorf("poll loop stalled for %s", age)
			}
			return nil
		}},
	}

	lines := make(chan string)
	g, gctx2 := errgroup.WithContext(gctx)
	g.Go(func() error { return readLines(gctx2, lines) })
	g.Go(func() error { return pollLoop(gctx2, ctx, sess, lines) })
	g.Go(func() error { watchdog.Run(gctx2, watchdog.Config{Interval: time.Second}, checks); return nil })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// readLines feeds stdin lines to out until ctx is cancelled or stdin
// is closed. It never touches the peertalk.Context: everything it
// produces is consumed back on the poll-loop goroutine, preserving
// the library's single-caller contract for Poll and the rest of the
// API.
func readLines(ctx context.Context, out chan<- string) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func pollLoop(ctx context.Context, pt *peertalk.Context, sess *session, lines <-chan string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := pt.Poll(); err != nil {
				return err
			}
			lastPollNano.Store(time.Now().UnixNano())
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			sess.handleLine(line)
		}
	}
}

func parseLevel(s string) peertalk.LogLevel {
	switch s {
	case "debug":
		return peertalk.LogDebug
	case "warn":
		return peertalk.LogWarn
	case "protocol":
		return peertalk.LogProtocol
	case "error", "err":
		return peertalk.LogErr
	default:
		return peertalk.LogInfo
	}
}
