package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var (
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists all visible entries of the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := fetch(cmd.Context())
			if err != nil {
				return err
			}
			printEntries(os.Stdout, entries)
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Prints the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := fetch(cmd.Context())
			if err != nil {
				return err
			}
			for _, e := range entries {
				if string(e.Key) == args[0] {
					fmt.Println(string(e.Value))
					return nil
				}
			}
			return errors.Newf("key %q not found", args[0])
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			maxAge, _ := cmd.Flags().GetDuration("max-age")
			e, err := newEntry(args[0], []byte(args[1]), maxAge, time.Now())
			if err != nil {
				return err
			}
			if err := push(cmd.Context(), e); err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "delete [key]",
		Short: "Deletes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEntry(args[0], nil, 0, time.Now())
			if err != nil {
				return err
			}
			if err := push(cmd.Context(), e); err != nil {
				return err
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
)

func init() {
	putCmd.Flags().Duration("max-age", 0, "Max age of the entry, e.g. 30s (0 = no max age)")
}

// newEntry creates an entry versioned with the local clock. A nil value creates a tombstone.
func newEntry(key string, value []byte, maxAge time.Duration, now time.Time) (store.Entry, error) {
	if value == nil {
		return store.NewTombstone([]byte(key), store.VersionAt(now), now.UnixMilli())
	}
	if maxAge < 0 || (maxAge > 0 && maxAge.Milliseconds() == 0) {
		return store.Entry{}, errors.Newf("max age must be at least 1ms, got %s", maxAge)
	}
	return store.NewEntry([]byte(key), value, store.VersionAt(now), now.UnixMilli(), maxAge.Milliseconds())
}

func fetch(ctx context.Context) ([]store.Entry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return syncClient.FetchEntries(ctx, node(), clientConfig.Store)
}

func push(ctx context.Context, e store.Entry) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return syncClient.PushEntries(ctx, node(), clientConfig.Store, []store.Entry{e})
}

// printEntries writes entries as a table sorted by key
func printEntries(w io.Writer, entries []store.Entry) {
	sort.Slice(entries, func(i, j int) bool { return string(entries[i].Key) < string(entries[j].Key) })

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KEY\tVALUE\tVERSION\tAGE\tMAX AGE")
	now := time.Now()
	for _, e := range entries {
		maxAge := "-"
		if e.HasMaxAge() {
			maxAge = (time.Duration(e.MaxAgeInMs) * time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", e.Key, e.Value, e.Version, e.Age(now).Round(time.Second), maxAge)
	}
	_ = tw.Flush()
}
