package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/park285/quizduel/internal/pgdb"
	"github.com/park285/quizduel/internal/questionfeed"
	"github.com/park285/quizduel/internal/questions"
)

type seedOptions struct {
	file    string
	baseURL string
	dataset string
	config  string
	split   string
	token   string
}

func newSeedCmd() *cobra.Command {
	o := &seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load questions into postgres from the remote dataset or a YAML file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbURL, _ := cmd.Flags().GetString("database-url")
			return runSeed(cmd.Context(), cmd, dbURL, o)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&o.file, "file", "f", "", "import this YAML question bank instead of the remote dataset")
	fs.StringVar(&o.baseURL, "base-url", questionfeed.DefaultBaseURL, "rows api base url")
	fs.StringVar(&o.dataset, "dataset", questionfeed.CSBench.Name, "dataset name")
	fs.StringVar(&o.config, "config", questionfeed.CSBench.Config, "dataset config")
	fs.StringVar(&o.split, "split", questionfeed.CSBench.Split, "dataset split")
	fs.StringVar(&o.token, "token", os.Getenv("HF_TOKEN"), "api token for gated datasets (env: HF_TOKEN)")
	return cmd
}

func runSeed(ctx context.Context, cmd *cobra.Command, dbURL string, o *seedOptions) error {
	if dbURL == "" {
		return errors.New("--database-url or DATABASE_URL is required")
	}
	db, err := pgdb.Open(ctx, dbURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := pgdb.EnsureSchema(ctx, db); err != nil {
		return err
	}
	repo := questions.NewRepository(db)
	out := cmd.OutOrStdout()

	if o.file != "" {
		raw, err := os.ReadFile(o.file)
		if err != nil {
			return err
		}
		qs, err := questions.ParseYAML(raw)
		if err != nil {
			return err
		}
		n, err := repo.InsertBatch(ctx, qs)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %d of %d questions from %s\n", n, len(qs), o.file)
		return nil
	}

	client := questionfeed.NewClient(o.baseURL, questionfeed.WithToken(o.token))
	ds := questionfeed.Dataset{Name: o.dataset, Config: o.config, Split: o.split}
	fmt.Fprintf(out, "fetching %s (%s/%s) from %s\n", ds.Name, ds.Config, ds.Split, o.baseURL)

	inserted := 0
	st, err := client.Import(ctx, ds, func(ctx context.Context, batch []questions.Question) error {
		n, err := repo.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		inserted += n
		fmt.Fprintf(out, "  ... inserted %d questions so far\n", inserted)
		return nil
	})
	if err != nil {
		return err
	}
	total, _ := repo.Count(ctx)
	fmt.Fprintf(out, "scanned %d rows, imported %d questions (bank now holds %d)\n", st.Scanned, inserted, total)
	return nil
}
