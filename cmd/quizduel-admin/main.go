package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const releaseVersion = "0.1.0"

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()
	cobra.CheckErr(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quizduel-admin",
		Short:         "Operator tooling for the quiz duel service.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
	}
	root.PersistentFlags().String("redis-url", os.Getenv("REDIS_URL"), "redis connection url (env: REDIS_URL)")
	root.PersistentFlags().String("database-url", os.Getenv("DATABASE_URL"), "postgres connection url (env: DATABASE_URL)")

	root.AddCommand(newSeedCmd(), newInspectCmd(), newCheckURLCmd(), newMatchesCmd())
	return root
}
