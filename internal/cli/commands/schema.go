package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/querykit/internal/cli/ui"
	"github.com/conduit-lang/querykit/internal/orm/query"
	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// NewSchemaCommand creates the schema command
func NewSchemaCommand() *cobra.Command {
	var (
		asJSON bool
		roles  []string
	)

	cmd := &cobra.Command{
		Use:   "schema [resource]",
		Short: "Show the resources declared in the schema file",
		Long: `Without arguments, list every resource with its pagination and the
association cycles between resources. With a resource name, show what
clients may filter, sort and include on it.

Conditional filterability is resolved for the roles given with --role.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			registry, err := loadRegistry(cfg)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				return listSchemas(cmd, registry, asJSON)
			}

			s, err := lookupResource(registry, args[0])
			if err != nil {
				return err
			}
			d := query.Describe(s, schema.RequestContext{Roles: roles})
			if asJSON {
				return writeJSON(cmd, d)
			}
			printDescription(cmd, d)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of tables")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles of the caller (repeatable)")
	return cmd
}

func listSchemas(cmd *cobra.Command, registry *schema.Registry, asJSON bool) error {
	names := registry.List()
	if asJSON {
		return writeJSON(cmd, map[string][]string{"resources": names})
	}

	out := cmd.OutOrStdout()
	table := ui.NewTable(out, noColor(cmd), "RESOURCE", "TABLE", "PAGINATION", "ATTRIBUTES", "ASSOCIATIONS")
	for _, name := range names {
		s, _ := registry.Get(name)
		table.AddRow(
			s.Name,
			s.Table,
			fmt.Sprintf("%s (%d/%d)", s.Pagination.Strategy, s.Pagination.DefaultSize, s.Pagination.MaxSize),
			strconv.Itoa(len(s.Attributes())),
			strconv.Itoa(len(s.Associations())),
		)
	}
	table.Render()

	if cycles := registry.Cycles(); len(cycles) > 0 {
		fmt.Fprintln(out)
		color.New(color.FgYellow).Fprintln(out, "Association cycles (includes are depth-limited):")
		for _, cycle := range cycles {
			fmt.Fprintf(out, "  %s\n", schema.FormatCycle(cycle))
		}
	}
	return nil
}

func printDescription(cmd *cobra.Command, d query.Description) {
	out := cmd.OutOrStdout()
	color.New(color.FgCyan, color.Bold).Fprintln(out, d.Name)
	fmt.Fprintf(out, "Pagination: %s, default %d, max %d\n\n",
		d.Pagination.Strategy, d.Pagination.DefaultSize, d.Pagination.MaxSize)

	attrs := ui.NewTable(out, noColor(cmd), "ATTRIBUTE", "KIND", "NULL", "FILTER", "SORT", "OPERATORS")
	for _, a := range d.Attributes {
		kind := a.Kind
		if len(a.Enum) > 0 {
			kind = fmt.Sprintf("%s(%s)", a.Kind, strings.Join(a.Enum, "|"))
		}
		attrs.AddRow(a.Name, kind, yesNo(a.Nullable), yesNo(a.Filterable), yesNo(a.Sortable), strings.Join(a.Operators, ","))
	}
	attrs.Render()

	if len(d.Associations) == 0 {
		return
	}
	fmt.Fprintln(out)
	assocs := ui.NewTable(out, noColor(cmd), "ASSOCIATION", "TARGET", "KIND", "FILTER", "SORT", "INCLUDE")
	for _, a := range d.Associations {
		include := yesNo(a.Includable)
		if a.AlwaysIncluded {
			include = "always"
		}
		assocs.AddRow(a.Name, a.Target, a.Kind, yesNo(a.Filterable), yesNo(a.Sortable), include)
	}
	assocs.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
