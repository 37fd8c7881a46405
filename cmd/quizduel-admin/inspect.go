package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/park285/quizduel/internal/redisconn"
)

func newInspectCmd() *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List live redis keys with their type and value.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, _ := cmd.Flags().GetString("redis-url")
			rdb, err := redisconn.Open(cmd.Context(), raw)
			if err != nil {
				return err
			}
			defer rdb.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "connected to %s\n", redisconn.Redact(raw))
			return dumpKeys(cmd.Context(), rdb, cmd.OutOrStdout(), pattern)
		},
	}
	cmd.Flags().StringVar(&pattern, "match", "*", "key pattern")
	return cmd
}

func dumpKeys(ctx context.Context, rdb *redis.Client, w io.Writer, pattern string) error {
	var keys []string
	iter := rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "total keys: %d\n", len(keys))
	if len(keys) == 0 {
		fmt.Fprintln(w, "the database is empty")
		return nil
	}
	for _, k := range keys {
		typ, err := rdb.Type(ctx, k).Result()
		if err != nil {
			return fmt.Errorf("type %s: %w", k, err)
		}
		fmt.Fprintf(w, "[%s] %s\n", typ, k)
		var val any
		switch typ {
		case "list":
			val, err = rdb.LRange(ctx, k, 0, -1).Result()
		case "hash":
			val, err = rdb.HGetAll(ctx, k).Result()
		case "string":
			val, err = rdb.Get(ctx, k).Result()
		case "set":
			var members []string
			members, err = rdb.SMembers(ctx, k).Result()
			sort.Strings(members)
			val = members
		case "zset":
			val, err = rdb.ZRangeWithScores(ctx, k, 0, -1).Result()
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", k, err)
		}
		fmt.Fprintf(w, "    value: %v\n", val)
	}
	return nil
}

func newCheckURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-url",
		Short: "Validate REDIS_URL and resolve its host.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, _ := cmd.Flags().GetString("redis-url")
			return checkURL(cmd.Context(), cmd.OutOrStdout(), raw, net.DefaultResolver)
		},
	}
}

type hostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

func checkURL(ctx context.Context, w io.Writer, raw string, r hostResolver) error {
	fmt.Fprintf(w, "url: %q\n", redisconn.Redact(raw))
	opts, err := redisconn.ParseURL(raw)
	if err != nil {
		return err
	}
	host, _, err := net.SplitHostPort(opts.Addr)
	if err != nil {
		return err
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	fmt.Fprintf(w, "ok: host %s resolves to %v (db %d, tls %v)\n", host, addrs, opts.DB, opts.TLSConfig != nil)
	return nil
}
