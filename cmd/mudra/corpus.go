package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/corpus"
	"github.com/ayusman/mudra/internal/sequence"
)

func runActions(ctx context.Context, env *env, args []string) error {
	fs, backend := newFlagSet("actions", env.cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	repo, closeRepo, err := openCorpus(ctx, env.cfg, *backend, env.logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	summaries, err := corpus.Summaries(ctx, repo)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION\tREPEATS\tLAST")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", s.Action, s.Repeats, s.LastRepeat)
	}
	return tw.Flush()
}

func runBounds(ctx context.Context, env *env, args []string) error {
	fs, backend := newFlagSet("bounds", env.cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	repo, closeRepo, err := openCorpus(ctx, env.cfg, *backend, env.logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	b, err := corpus.LengthBounds(ctx, repo)
	if errors.Is(err, sequence.ErrNoSequences) {
		return errors.New("the corpus is empty")
	}
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(b)
}

func runDataset(ctx context.Context, env *env, args []string) error {
	fs, backend := newFlagSet("dataset", env.cfg)
	out := fs.String("out", "dataset", "output directory")
	maxLen := fs.Int("max-len", 0, "padded sequence length (default: longest repeat)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	repo, closeRepo, err := openCorpus(ctx, env.cfg, *backend, env.logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	ds, err := corpus.BuildDataset(ctx, repo, corpus.DatasetOptions{
		Sentinel: sequence.DefaultSentinel,
		MaxLen:   *maxLen,
	})
	if err != nil {
		return fmt.Errorf("failed to build dataset: %w", err)
	}
	if err := ds.WriteDir(*out); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}

	env.logger.Info("dataset written",
		"dir", *out,
		"sequences", ds.Batch.N,
		"max_seq_len", ds.Batch.L,
		"labels", len(ds.Meta.LabelOrder))
	fmt.Printf("%d sequences x %d frames x %d values, %d labels -> %s\n",
		ds.Batch.N, ds.Batch.L, ds.Batch.D, len(ds.Meta.LabelOrder), *out)
	return nil
}

func runExport(ctx context.Context, env *env, args []string) error {
	fs, backend := newFlagSet("export", env.cfg)
	dir := fs.String("dir", "", "destination directory (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		return errors.New("export: -dir is required")
	}
	if *backend == config.BackendDir && *dir == env.cfg.ActionsDir() {
		return errors.New("export: source and destination are the same directory")
	}

	src, closeSrc, err := openCorpus(ctx, env.cfg, *backend, env.logger)
	if err != nil {
		return err
	}
	defer closeSrc()

	dst, err := corpus.NewDirRepository(*dir, env.logger)
	if err != nil {
		return err
	}

	keys, err := corpus.Copy(ctx, dst, src)
	if err != nil {
		return fmt.Errorf("export stopped after %d repeats: %w", len(keys), err)
	}
	fmt.Printf("exported %d repeats to %s\n", len(keys), *dir)
	return nil
}
