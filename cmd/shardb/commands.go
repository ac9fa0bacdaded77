package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jpl-au/shardb"
	"github.com/spf13/cobra"
)

func (c *cli) createCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.path()
			if err != nil {
				return err
			}
			db, err := shardb.Create(p, shardb.Config{
				FileCapacity:  c.v.GetInt("capacity"),
				FileExtension: c.v.GetString("ext"),
			}, c.options()...)
			if err != nil {
				return err
			}
			defer db.Close()

			cfg := db.Config()
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (capacity %d, ext %s)\n",
				db.Path(), cfg.FileCapacity, cfg.FileExtension)
			return nil
		},
	}
	cmd.Flags().Int("capacity", 1000, "lines per shard file")
	cmd.Flags().String("ext", shardb.DefaultExtension, "shard file extension")
	return cmd
}

func (c *cli) writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write [lines...]",
		Short: "Append lines (read from stdin when none are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			items := args
			if len(items) == 0 {
				var err error
				if items, err = readLines(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			db, err := c.connect()
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := db.Write(items...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d lines, %d shards (total %d lines, %d shards)\n",
				res.InsertedLines, res.InsertedShards, res.TotalLines, res.TotalShards)
			return nil
		},
	}
}

func (c *cli) queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print lines selected by shard, skip, limit and filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.connect()
			if err != nil {
				return err
			}
			defer db.Close()

			q, err := c.buildQuery(cmd, db)
			if err != nil {
				return err
			}
			res, err := q.Run()
			if err != nil {
				return err
			}

			w := bufio.NewWriter(cmd.OutOrStdout())
			for _, it := range res.Items {
				fmt.Fprintf(w, "%d\t%s\n", it.Address, it.Line)
			}
			fmt.Fprintf(w, "# %d items (total %d lines, %d shards)\n",
				len(res.Items), res.TotalLines, res.TotalShards)
			return w.Flush()
		},
	}
	cmd.Flags().Int("shard", 0, "read a single shard")
	cmd.Flags().Int("from", 0, "first shard of a range")
	cmd.Flags().Int("to", 0, "last shard of a range (open ended when unset)")
	cmd.Flags().Int("skip", 0, "lines to skip")
	cmd.Flags().Int("limit", 0, "maximum lines (0 for no limit)")
	cmd.Flags().String("match", "", "regular expression lines must match")
	cmd.Flags().String("contains", "", "substring lines must contain")
	cmd.MarkFlagsMutuallyExclusive("shard", "from")
	cmd.MarkFlagsMutuallyExclusive("shard", "to")
	cmd.MarkFlagsMutuallyExclusive("match", "contains")
	return cmd
}

// buildQuery maps the query flags onto the builder.
func (c *cli) buildQuery(cmd *cobra.Command, db *shardb.DB) (*shardb.Query, error) {
	q := db.Query()
	flags := cmd.Flags()
	switch {
	case flags.Changed("shard"):
		q = q.Shard(c.v.GetInt("shard"))
	case flags.Changed("to"):
		q = q.ShardRange(c.v.GetInt("from"), c.v.GetInt("to"))
	case flags.Changed("from"):
		q = q.ShardsFrom(c.v.GetInt("from"))
	}
	if n := c.v.GetInt("skip"); n > 0 {
		q = q.Skip(n)
	}
	if n := c.v.GetInt("limit"); n > 0 {
		q = q.Limit(n)
	}
	switch {
	case c.v.GetString("match") != "":
		p, err := shardb.Match(c.v.GetString("match"))
		if err != nil {
			return nil, err
		}
		q = q.Find(p)
	case c.v.GetString("contains") != "":
		q = q.Find(shardb.Contains(c.v.GetString("contains")))
	}
	return q, nil
}

func (c *cli) infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print counts and configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.connect()
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if c.v.GetBool("metrics") {
				db.WriteMetrics(out)
				return nil
			}
			s := db.Stats()
			fmt.Fprintf(out, "path:     %s\n", db.Path())
			fmt.Fprintf(out, "capacity: %d\n", s.Capacity)
			fmt.Fprintf(out, "ext:      %s\n", s.Ext)
			fmt.Fprintf(out, "lines:    %d\n", s.Lines)
			fmt.Fprintf(out, "shards:   %d\n", s.Shards)
			fmt.Fprintf(out, "tail:     %d bytes\n", s.Tail)
			return nil
		},
	}
	cmd.Flags().Bool("metrics", false, "print metrics in Prometheus text format")
	return cmd
}

func (c *cli) dumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Export every line as a Zstd stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.connect()
			if err != nil {
				return err
			}
			defer db.Close()

			var w io.Writer = cmd.OutOrStdout()
			if out := c.v.GetString("out"); out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := db.Dump(w)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "dumped %d lines\n", n)
			return nil
		},
	}
	cmd.Flags().String("out", "-", "output file (- for stdout)")
	return cmd
}

func (c *cli) restoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Append every line of a Zstd stream written by dump",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.connect()
			if err != nil {
				return err
			}
			defer db.Close()

			r := cmd.InOrStdin()
			if in := c.v.GetString("in"); in != "" && in != "-" {
				f, err := os.Open(in)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			n, err := db.Restore(r, c.v.GetInt("batch"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d lines\n", n)
			return nil
		},
	}
	cmd.Flags().String("in", "-", "input file (- for stdin)")
	cmd.Flags().Int("batch", 0, "lines per write (0 for the file capacity)")
	return cmd
}

// readLines reads '\n' separated lines, dropping a trailing '\r'.
func readLines(r io.Reader) ([]string, error) {
	var items []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		items = append(items, strings.TrimSuffix(sc.Text(), "\r"))
	}
	return items, sc.Err()
}
