package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/querykit/internal/cli/ui"
	"github.com/conduit-lang/querykit/internal/orm/query"
	"github.com/conduit-lang/querykit/internal/orm/schema"
	"github.com/conduit-lang/querykit/internal/web/params"
)

// ErrQueryRejected is returned when compilation reports issues
var ErrQueryRejected = errors.New("query rejected")

// NewCompileCommand creates the compile command
func NewCompileCommand() *cobra.Command {
	var (
		dialectName string
		rawQuery    string
		principal   string
		roles       []string
	)

	cmd := &cobra.Command{
		Use:   "compile <resource> [params-json | -]",
		Short: "Compile query parameters to SQL without running them",
		Long: `Compile query parameters for a resource and print the SQL that would run.

Parameters are a JSON document like a POST /resources/{resource}/query body,
read from the argument or from stdin with "-". Use --query to pass them in
URL form instead, e.g. --query 'filter[status]=draft&sort=-total'.

Validation issues are printed together and the command fails.`,
		Example: `  querykit compile Invoice '{"filter": {"status": "draft"}, "sort": "-total"}'
  querykit compile Invoice --query 'filter[total][gte]=100&include=customer'
  echo '{"page": {"size": 5}}' | querykit compile LineItem -`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			registry, err := loadRegistry(cfg)
			if err != nil {
				return err
			}
			s, err := lookupResource(registry, args[0])
			if err != nil {
				return err
			}

			if dialectName == "" {
				dialectName = cfg.Database.Driver
			}
			dialect, err := query.DialectForDriver(dialectName)
			if err != nil {
				return err
			}

			p, err := readParams(cmd, args[1:], rawQuery)
			if err != nil {
				return err
			}

			compiler := query.NewCompiler(registry, cfg.CompilerOptions(), nil)
			q, issues := compiler.CompileSchema(s, p, schema.RequestContext{Principal: principal, Roles: roles})
			if len(issues) > 0 {
				ui.PrintIssues(cmd.ErrOrStderr(), issues, noColor(cmd))
				return ErrQueryRejected
			}
			return printStatements(cmd, dialect, q)
		},
	}

	cmd.Flags().StringVar(&dialectName, "dialect", "", "SQL dialect: postgres or sqlite (default: the configured driver)")
	cmd.Flags().StringVar(&rawQuery, "query", "", "parameters as a URL query string")
	cmd.Flags().StringVar(&principal, "principal", "", "principal of the caller")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles of the caller (repeatable)")
	return cmd
}

func readParams(cmd *cobra.Command, args []string, rawQuery string) (query.Params, error) {
	if rawQuery != "" {
		if len(args) > 0 {
			return query.Params{}, fmt.Errorf("pass parameters either as JSON or with --query, not both")
		}
		return params.Parse(strings.TrimPrefix(rawQuery, "?"))
	}
	if len(args) == 0 {
		return query.Params{}, nil
	}

	data := []byte(args[0])
	if args[0] == "-" {
		var err error
		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return query.Params{}, fmt.Errorf("failed to read stdin: %w", err)
		}
	}
	return query.DecodeParams(data)
}

func printStatements(cmd *cobra.Command, dialect query.Dialect, q *query.Query) error {
	out := cmd.OutOrStdout()
	heading := color.New(color.FgCyan, color.Bold)
	if noColor(cmd) {
		heading.DisableColor()
	}

	if q.Page.Empty {
		fmt.Fprintln(out, "-- the page matches no rows; nothing would run")
		return nil
	}

	stmt, err := dialect.Select(q)
	if err != nil {
		return fmt.Errorf("failed to render query: %w", err)
	}
	heading.Fprintf(out, "-- %s rows (%s)\n", q.Resource, dialect)
	fmt.Fprintln(out, stmt.String())

	if q.Page.Strategy == schema.PaginateOffset {
		count, err := dialect.Count(q)
		if err != nil {
			return fmt.Errorf("failed to render count: %w", err)
		}
		fmt.Fprintln(out)
		heading.Fprintln(out, "-- total count")
		fmt.Fprintln(out, count.String())
	}

	if names := q.Includes.String(); names != "" {
		fmt.Fprintln(out)
		heading.Fprintf(out, "-- includes: %s\n", names)
	}
	return nil
}
