package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/leporo/sqlrec"
	"github.com/leporo/sqlrec/internal/config"
	"github.com/leporo/sqlrec/sqldriver"
)

// app carries state shared by subcommands once the configuration is loaded.
type app struct {
	fs  afero.Fs
	cfg *config.Config
	log *slog.Logger
	drv *sqldriver.Driver
}

// NewRootCmd builds the sqlrec command tree reading configuration from fs.
func NewRootCmd(fs afero.Fs) *cobra.Command {
	a := &app{fs: fs}

	rootCmd := &cobra.Command{
		Use:   "sqlrec",
		Short: "Inspect and change table rows",
		Long: `Inspect and change table rows from the command line.

Configuration is read from .sqlrec.yaml in the current directory, the home
directory or ~/.config/sqlrec, from .env and .env.local files and from
SQLREC_ environment variables. DATABASE_URL is used when no DSN is set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.drv == nil {
				return nil
			}
			return a.drv.Close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("driver", "", "database/sql driver name: sqlite3, postgres or mysql")
	flags.String("dsn", "", "data source name")
	flags.String("log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(
		newFindCmd(a),
		newQueryCmd(a),
		newExecCmd(a),
		newTablesCmd(a),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.fs)
	if err != nil {
		return err
	}
	if err := cfg.BindFlags(cmd.Flags()); err != nil {
		return err
	}
	a.cfg = cfg

	a.log, err = newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return err
	}
	a.log.Debug("configuration loaded", "file", cfg.ConfigFile(), "driver", cfg.Driver)
	return nil
}

// connect opens the configured database on first use.
func (a *app) connect() (*sqldriver.Driver, error) {
	if a.drv != nil {
		return a.drv, nil
	}
	drv, err := sqldriver.Open(a.cfg.Driver, a.cfg.DSN, sqldriver.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	a.drv = drv
	return drv, nil
}

func (a *app) entity(table string) (*sqlrec.Entity, error) {
	drv, err := a.connect()
	if err != nil {
		return nil, err
	}
	return a.cfg.Entity(table, drv)
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler), nil
}

// printRecords writes records as JSON lines.
func printRecords(w io.Writer, records ...*sqlrec.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the command line and reports a failure on stderr.
func Execute() error {
	err := NewRootCmd(config.AppFs).Execute()
	if err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprint(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, err)
	}
	return err
}
