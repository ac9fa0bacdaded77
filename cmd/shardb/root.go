package main

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/jpl-au/shardb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const Version = "0.3.0"

// cli carries the state shared by every subcommand of one invocation.
type cli struct {
	v   *viper.Viper
	log *zap.Logger
}

// newRootCmd builds the command tree. Each call gets its own viper
// instance so that tests can run several trees in one process.
func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New(), log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "shardb",
		Short: "sharded append-only line store",
		Long: fmt.Sprintf(`shardb (v%s)

Stores ordered lines across fixed-capacity shard files. Lines are
addressed by their zero-based position and never change once written.

Every flag can also be set through the environment with the SHARDB_
prefix, e.g. SHARDB_DB=/var/lib/lines. .env and .env.local in the
working directory are loaded first.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	root.PersistentFlags().String("db", "", "database directory")
	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("sync", false, "fsync shards and manifest on every write")

	root.AddCommand(
		c.createCmd(),
		c.writeCmd(),
		c.queryCmd(),
		c.infoCmd(),
		c.dumpCmd(),
		c.restoreCmd(),
		versionCmd(),
	)
	return root
}

// setup loads env files, binds flags to viper and builds the logger.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	c.v.SetEnvPrefix("shardb")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	if err := c.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	log, err := newLogger(c.v.GetString("log-level"))
	if err != nil {
		return err
	}
	c.log = log
	return nil
}

// newLogger builds a console logger on stderr at the named level.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// path returns the --db value or fails when it is unset.
func (c *cli) path() (string, error) {
	p := c.v.GetString("db")
	if p == "" {
		return "", fmt.Errorf("no database given: use --db or SHARDB_DB")
	}
	return p, nil
}

func (c *cli) options() []shardb.Option {
	return []shardb.Option{
		shardb.WithLogger(c.log),
		shardb.WithSyncWrites(c.v.GetBool("sync")),
	}
}

// connect opens the database named by --db.
func (c *cli) connect() (*shardb.DB, error) {
	p, err := c.path()
	if err != nil {
		return nil, err
	}
	return shardb.Connect(p, c.options()...)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of shardb",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shardb v%s\n", Version)
		},
	}
}
