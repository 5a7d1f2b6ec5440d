package main

import (
	"bufio"
	"cim/contract"
	"cim/domain"
	"cim/domain/event"
	cimerrors "cim/errors"
	"cim/internal"
	"cim/moderation"
	"cim/repositories"
	"cim/runtime"
	"cim/sink"
	"cim/transport"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the console.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const quitTimeout = 5 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration, an optional .env file first
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return exitConfig, fmt.Errorf("loading .env: %w", err)
	}
	config, err := internal.Load()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Local history, when configured
	var sinks []contract.HistorySink
	var index repositories.IHistoryIndex
	if config.HistoryBadgerPath != "" {
		db, err := badger.Open(badger.DefaultOptions(config.HistoryBadgerPath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return exitRuntime, fmt.Errorf("history database opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}()

		if config.HistoryBlugePath != "" {
			writer, err := bluge.OpenWriter(bluge.DefaultConfig(config.HistoryBlugePath))
			if err != nil {
				return exitRuntime, fmt.Errorf("history index opening failed: %w", err)
			}
			defer func() {
				log.Info("Closing Bluge index...")
				_ = writer.Close()
			}()
			index = repositories.NewHistoryIndex(writer, log)
		}
		repository := repositories.NewHistoryRepository(db, log, config.LimitRecords)
		sinks = append(sinks, sink.NewHistorySink(repository, index, log))
	}

	// 3. Engine
	var filter *moderation.Filter
	if muted := config.Muted(); len(muted) > 0 {
		mask, _ := internal.CharacterRune(config.MaskCharacter)
		if filter, err = moderation.NewFilter(muted, mask, log); err != nil {
			return exitConfig, err
		}
	}
	dialer, err := transport.New(log, config.Address(), config.HandshakeTimeout)
	if err != nil {
		return exitConfig, err
	}
	engine, err := runtime.NewEngine(log, dialer, config.Options(), filter, sinks...)
	if err != nil {
		return exitConfig, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := engine.Subscribe()
	if err := engine.Start(ctx); err != nil {
		return exitRuntime, err
	}

	// 4. Display events until the session ends
	var joinDefault sync.Once
	onConnected := func() {
		if config.DefaultChannel == "" {
			return
		}
		joinDefault.Do(func() {
			if _, err := engine.JoinChannel(config.DefaultChannel); err != nil {
				log.Warn("Default channel not joined", "channel", config.DefaultChannel, "error", err)
			}
		})
	}
	fatal := make(chan error, 1)
	displayed := make(chan struct{})
	go func() {
		defer close(displayed)
		display(os.Stdout, renderer{colours: true}, events, fatal, onConnected)
	}()

	con := newConsole(engine, index, os.Stdout, config.DefaultChannel)

	// 5. Read commands from stdin
	lines := readLines(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return quit(engine, displayed, fatal, log)
		case <-displayed:
			return outcome(fatal)
		case line, ok := <-lines:
			if !ok {
				return quit(engine, displayed, fatal, log)
			}
			err := con.Execute(ctx, line)
			if errors.Is(err, errQuit) {
				return quit(engine, displayed, fatal, log)
			}
			if err != nil {
				fmt.Fprintf(os.Stdout, "! %v\n", err)
			}
		}
	}
}

// display prints events until the subscription ends. The reason of a
// FatalError is reported on fatal.
func display(out io.Writer, r renderer, events *runtime.Subscription, fatal chan<- error, onConnected func()) {
	for evt := range events.All(context.Background()) {
		if line := r.Render(evt); line != "" {
			fmt.Fprintln(out, line)
		}
		if c, ok := evt.(event.ConnectionStateChanged); ok && c.To == domain.Connected {
			onConnected()
		}
		if f, ok := evt.(event.FatalError); ok {
			err := fmt.Errorf("%s", f.Reason)
			if f.Err != nil {
				err = fmt.Errorf("%s: %w", f.Reason, f.Err)
			}
			select {
			case fatal <- err:
			default:
			}
		}
	}
}

// quit ends the session and waits for the last events to be printed.
func quit(engine *runtime.Engine, displayed <-chan struct{}, fatal <-chan error, log *slog.Logger) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), quitTimeout)
	defer cancel()
	if _, err := engine.Quit().Wait(ctx); err != nil && !errors.Is(err, cimerrors.ErrSessionClosed) {
		log.Warn("Quit did not complete", "error", err)
	}
	select {
	case <-displayed:
	case <-ctx.Done():
	}
	return outcome(fatal)
}

func outcome(fatal <-chan error) (int, error) {
	select {
	case err := <-fatal:
		return exitRuntime, err
	default:
		return exitOK, nil
	}
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
