package commands

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/querykit/internal/cli/config"
	"github.com/conduit-lang/querykit/internal/cli/ui"
	"github.com/conduit-lang/querykit/internal/orm/schema"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "querykit",
		Short: "Declarative filtering, sorting and pagination for SQL resources",
		Long: color.CyanString(`querykit - query compiler for resource APIs

querykit turns client filter, sort, include and page parameters into
validated, parameterized SQL for the resources declared in a schema file.

Features:
  • Nested _and / _or / _not filters with typed operators
  • Filtering and sorting across associations
  • Offset and cursor pagination
  • Batched eager loading of includes
  • Every validation problem reported at once`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default: querykit.yml in the working directory)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			color.NoColor = true
		}
	}

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewSchemaCommand())
	rootCmd.AddCommand(NewCompileCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewTokenCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the querykit version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			out := cmd.OutOrStdout()
			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)

			titleColor.Fprint(out, "querykit version: ")
			valueColor.Fprintln(out, Version)

			titleColor.Fprint(out, "Git commit: ")
			valueColor.Fprintln(out, GitCommit)

			titleColor.Fprint(out, "Build date: ")
			valueColor.Fprintln(out, BuildDate)

			titleColor.Fprint(out, "Go version: ")
			valueColor.Fprintln(out, goVer)
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig loads the file named by --config, or the default one
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// loadRegistry loads the schema file with the configured pagination defaults
func loadRegistry(cfg *config.Config) (*schema.Registry, error) {
	registry, err := schema.LoadFileWithDefaults(cfg.Schema.Path, cfg.Pagination())
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	return registry, nil
}

// lookupResource resolves name, suggesting close matches when it is unknown
func lookupResource(registry *schema.Registry, name string) (*schema.Schema, error) {
	s, err := registry.Lookup(name)
	if err == nil {
		return s, nil
	}
	if suggestions := ui.Suggest(name, registry.List()); len(suggestions) > 0 {
		return nil, fmt.Errorf("%w (did you mean %s?)", err, suggestions[0])
	}
	return nil, err
}

func noColor(cmd *cobra.Command) bool {
	flag, _ := cmd.Flags().GetBool("no-color")
	return flag || color.NoColor
}
