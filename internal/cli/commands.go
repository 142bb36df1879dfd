package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newFindCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "find <table> <id>",
		Short: "Print a row by its primary key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.entity(args[0])
			if err != nil {
				return err
			}
			r, err := e.Find(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if r == nil {
				return errors.Errorf("%s %s not found", args[0], args[1])
			}
			return printRecords(cmd.OutOrStdout(), r)
		},
	}
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		columns []string
		wheres  []string
		orderBy []string
		limit   int
		offset  int
		count   bool
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Print rows matching filters",
		Long: `Print rows matching filters, one JSON object per line.

Filters have the form "column op value", e.g.

    sqlrec query users --where "email like %@example.com" --where "id in 1,2,3"

"column is null" and "column is not null" are accepted as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.entity(args[0])
			if err != nil {
				return err
			}
			q := e.Query().Select(columns...)
			for _, expr := range wheres {
				f, err := ParseFilter(expr)
				if err != nil {
					return err
				}
				f.Apply(q)
			}
			for _, expr := range orderBy {
				column, dir := ParseOrder(expr)
				q.OrderBy(column, dir)
			}
			if limit > 0 {
				q.Limit(limit)
			}
			if offset > 0 {
				q.Offset(offset)
			}

			out := cmd.OutOrStdout()
			if dryRun {
				sql, sqlArgs := q.Build()
				fmt.Fprintln(out, sql)
				fmt.Fprintln(out, sqlArgs)
				return nil
			}
			if count {
				n, err := q.Count(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, n)
				return nil
			}
			records, err := q.Get(cmd.Context())
			if err != nil {
				return err
			}
			return printRecords(out, records...)
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVar(&columns, "select", nil, "columns to print")
	flags.StringArrayVarP(&wheres, "where", "w", nil, `filter as "column op value", repeatable`)
	flags.StringArrayVar(&orderBy, "order-by", nil, "column[:asc|desc], repeatable")
	flags.IntVar(&limit, "limit", 0, "maximum number of rows")
	flags.IntVar(&offset, "offset", 0, "number of rows to skip")
	flags.BoolVar(&count, "count", false, "print the number of matching rows")
	flags.BoolVar(&dryRun, "dry-run", false, "print the statement instead of running it")
	return cmd
}

func newExecCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql> [args...]",
		Short: "Run a statement that returns no rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			drv, err := a.connect()
			if err != nil {
				return err
			}
			sqlArgs := make([]any, 0, len(args)-1)
			for _, arg := range args[1:] {
				sqlArgs = append(sqlArgs, arg)
			}
			if err := drv.Execute(cmd.Context(), args[0], sqlArgs); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintln(cmd.ErrOrStderr(), "OK")
			return nil
		},
	}
}

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables described in the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, table := range a.cfg.Tables() {
				e, err := a.cfg.Entity(table, nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\tpk=%s\tfillable=%v\n", e.Table, primaryKey(e.PrimaryKey), e.Fillable)
			}
			return nil
		},
	}
}

func primaryKey(pk string) string {
	if pk == "" {
		return "id"
	}
	return pk
}
