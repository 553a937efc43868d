package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"expiring-cache/internal/expiry"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var errNotFound = errors.New("key not found or expired")

// parseValue reads JSON literals as structured values and anything else as a string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func getCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print a cached value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok := a.store.Get(args[0])
			if !ok {
				return fmt.Errorf("%s: %w", args[0], errNotFound)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatValue(v))
			return nil
		},
	}
}

func setCmd(a *app) *cobra.Command {
	var ttl time.Duration
	var ifAbsent bool

	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Cache a value; JSON literals are stored as structured values",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := parseValue(args[1])
			if ttl == 0 {
				ttl = expiry.Never
			}
			if ifAbsent {
				fmt.Fprintln(cmd.OutOrStdout(), formatValue(a.store.GetOrInsertTTL(args[0], value, ttl)))
				return nil
			}
			a.store.PutTTL(args[0], value, ttl)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "time to live (0 never expires)")
	cmd.Flags().BoolVar(&ifAbsent, "if-absent", false, "keep and print the existing value if there is one")
	return cmd
}

func rmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm KEY...",
		Short: "Remove keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			for _, k := range args {
				a.store.Remove(k)
			}
			return nil
		},
	}
}

func keysCmd(a *app) *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List live keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			now := time.Now()
			for _, k := range a.store.Keys() {
				if !long {
					fmt.Fprintln(out, k)
					continue
				}
				rec, _ := a.store.Record(k)
				expires := "never"
				if at, ok := rec.ExpiresAt(); ok {
					expires = humanize.RelTime(at, now, "ago", "from now")
				}
				fmt.Fprintf(out, "%s\tinserted %s\texpires %s\n", k, humanize.Time(rec.InsertedAt), expires)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show insertion and expiry times")
	return cmd
}

func purgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Evict expired entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n := a.store.PurgeExpired()
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d %s\n", n, plural(n, "entry", "entries"))
			return nil
		},
	}
}

func statsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics for this invocation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			st := a.store.Stats()
			fmt.Fprintf(out, "backend:  %s\n", a.cfg.Backend)
			fmt.Fprintf(out, "snapshot: %s\n", a.cfg.SnapshotPath())
			if fi, err := os.Stat(a.cfg.SnapshotPath()); err == nil {
				fmt.Fprintf(out, "size:     %s (written %s)\n", humanize.Bytes(uint64(fi.Size())), humanize.Time(fi.ModTime()))
			}
			fmt.Fprintf(out, "entries:  %s\n", humanize.Comma(int64(st.Entries)))
			fmt.Fprintf(out, "hits:     %s\n", humanize.Comma(st.Hits))
			fmt.Fprintf(out, "misses:   %s\n", humanize.Comma(st.Misses))
			fmt.Fprintf(out, "expired:  %s\n", humanize.Comma(st.Expirations))
			fmt.Fprintf(out, "hit rate: %s%%\n", humanize.FtoaWithDigits(st.HitRate()*100, 1))
			return nil
		},
	}
}

func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read the cache config file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get NAME",
		Short: "Print an integer setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.cc.GetLong(args[0]))
			return nil
		},
	})
	return cmd
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
