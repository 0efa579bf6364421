// Command mudra records sign language corpora and translates signs live
// from a camera or a video file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/logging"
)

var Version = "0.1.0"

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

// env is what every subcommand starts from.
type env struct {
	cfg    config.Config
	logger *slog.Logger
}

var commands = []command{
	{"serve", "run the HTTP API, live translation and plugins", runServe},
	{"collect", "record repeats of an action from the camera", runCollect},
	{"translate", "recognize signs from the camera or a video file", runTranslate},
	{"actions", "list recorded actions", runActions},
	{"bounds", "print the corpus sequence length bounds", runBounds},
	{"dataset", "write the padded training dataset", runDataset},
	{"export", "copy the corpus into the directory layout", runExport},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "mudra: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage()
		return flag.ErrHelp
	}
	if args[0] == "version" {
		fmt.Println("mudra", Version)
		return nil
	}

	cmd, ok := lookup(args[0])
	if !ok {
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return cmd.run(ctx, &env{cfg: cfg, logger: logger}, args[1:])
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: mudra <command> [flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "version", "print the version")
	fmt.Fprintf(os.Stderr, "\nconfiguration is read from MUDRA_* environment variables\n")
}

// newFlagSet creates a flag set with the shared -backend flag.
func newFlagSet(name string, cfg config.Config) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	backend := fs.String("backend", cfg.CorpusBackend, "corpus backend: sqlite, postgres or dir")
	return fs, backend
}
