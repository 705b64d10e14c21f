// Command crocolake is a command-line interface for inspecting and
// querying CrocoLake databases.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	crocolake "github.com/crocolake/go-crocolake"
	"github.com/crocolake/go-crocolake/catalog"
	"github.com/crocolake/go-crocolake/filter"
)

const version = "0.1.0"

var (
	flagType    string
	flagPath    string
	flagSelect  []string
	flagSources []string
	flagWhere   []string
	flagLimit   int64
	flagVerbose bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "crocolake",
		Short:         "Load and query CrocoLake oceanographic databases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagType, "type", "PHY", "database type (PHY or BGC)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log source resolution and reads")

	root.AddCommand(versionCmd(), variablesCmd(), sourcesCmd(), queryCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("crocolake version: %s\n", version)
		},
	}
}

func variablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variables",
		Short: "List the catalog variables for a database type",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := catalog.DatabaseType(strings.ToUpper(flagType))
			if !t.Valid() {
				return fmt.Errorf("unknown database type %q", flagType)
			}
			cat := catalog.Default()
			for _, name := range cat.VariablesFor(t) {
				v, _ := cat.Variable(name)
				marker := " "
				if v.Mandatory {
					marker = "*"
				}
				fmt.Printf("%s %-24s %-12s %s\n", marker, v.Name, v.Unit, v.LongName)
			}
			return nil
		},
	}
}

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Show the sources resolved under a database root",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := newLoader(cmd.Context(), nil)
			if err != nil {
				return err
			}
			for _, name := range loader.Sources() {
				fmt.Println(name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagPath, "path", ".", "database root path")
	return cmd
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Load a filtered view and print the first rows",
		Long: `Load a filtered view of the database and print the first rows.

Each --where flag is a conjunction of comma-separated predicates; multiple
--where flags combine as alternatives (OR). Example:

  crocolake query --path /data --select LATITUDE,LONGITUDE,TEMP \
      --where "LATITUDE>5,LATITUDE<30" --where "TEMP notnull"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseWhere(flagWhere)
			if err != nil {
				return err
			}

			loader, err := newLoader(cmd.Context(), spec)
			if err != nil {
				return err
			}

			ds, err := loader.GetDataframe(cmd.Context())
			if err != nil {
				return err
			}
			tbl, err := ds.Collect(cmd.Context())
			if err != nil {
				return err
			}
			defer tbl.Release()

			printHead(tbl, flagLimit)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagPath, "path", ".", "database root path")
	cmd.Flags().StringSliceVar(&flagSelect, "select", nil, "variables to load (default: all)")
	cmd.Flags().StringSliceVar(&flagSources, "source", nil, "sources to read (default: all present)")
	cmd.Flags().StringArrayVar(&flagWhere, "where", nil, "row filters, ANDed within a flag, ORed across flags")
	cmd.Flags().Int64Var(&flagLimit, "limit", 20, "number of rows to print")
	return cmd
}

func newLoader(ctx context.Context, spec filter.Spec) (*crocolake.Loader, error) {
	opts := []crocolake.Option{
		crocolake.WithDatabaseType(catalog.DatabaseType(strings.ToUpper(flagType))),
		crocolake.WithRootPath(flagPath),
	}
	if len(flagSelect) > 0 {
		opts = append(opts, crocolake.WithVariables(flagSelect...))
	}
	if len(flagSources) > 0 {
		opts = append(opts, crocolake.WithSources(flagSources...))
	}
	if spec != nil {
		opts = append(opts, crocolake.WithFilters(spec))
	}
	if flagVerbose {
		log := logrus.New()
		log.SetLevel(logrus.DebugLevel)
		opts = append(opts, crocolake.WithLogger(log))
	}
	return crocolake.NewLoader(ctx, opts...)
}

// parseWhere turns --where clauses into a filter spec. Each clause is a
// comma-separated conjunction like "LATITUDE>5,LATITUDE<30".
func parseWhere(clauses []string) (filter.Spec, error) {
	if len(clauses) == 0 {
		return nil, nil
	}
	var spec filter.Spec
	for _, clause := range clauses {
		var group filter.Group
		for _, term := range strings.Split(clause, ",") {
			pred, err := parsePredicate(strings.TrimSpace(term))
			if err != nil {
				return nil, err
			}
			group = append(group, pred)
		}
		spec = append(spec, group)
	}
	return spec, nil
}

func parsePredicate(term string) (filter.Predicate, error) {
	if col, ok := strings.CutSuffix(term, " notnull"); ok {
		return filter.NotNull(strings.TrimSpace(col)), nil
	}

	// Two-character operators before their one-character prefixes.
	for _, opStr := range []string{">=", "<=", "!=", "==", ">", "<", "="} {
		col, rest, found := strings.Cut(term, opStr)
		if !found {
			continue
		}
		op, err := filter.ParseOp(opStr)
		if err != nil {
			return filter.Predicate{}, err
		}
		col = strings.TrimSpace(col)
		rest = strings.TrimSpace(rest)
		if col == "" || rest == "" {
			return filter.Predicate{}, fmt.Errorf("malformed filter %q", term)
		}
		return filter.Predicate{Column: col, Op: op, Value: parseLiteral(rest)}, nil
	}
	return filter.Predicate{}, fmt.Errorf("malformed filter %q", term)
}

// parseLiteral interprets a filter value as a number when possible and a
// string otherwise.
func parseLiteral(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return strings.Trim(s, `"'`)
}

// printHead prints up to limit rows of the table in columns.
func printHead(tbl arrow.Table, limit int64) {
	schema := tbl.Schema()
	names := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}
	fmt.Println(strings.Join(names, "\t"))

	n := tbl.NumRows()
	if limit < n {
		n = limit
	}
	if n == 0 {
		fmt.Println("(no rows)")
		return
	}

	reader := array.NewTableReader(tbl, n)
	defer reader.Release()
	var printed int64
	for reader.Next() && printed < n {
		rec := reader.Record()
		for row := 0; int64(row) < rec.NumRows() && printed < n; row++ {
			cells := make([]string, int(rec.NumCols()))
			for col := 0; col < int(rec.NumCols()); col++ {
				cells[col] = cellString(rec.Column(col), row)
			}
			fmt.Println(strings.Join(cells, "\t"))
			printed++
		}
	}
	if printed < tbl.NumRows() {
		fmt.Printf("... %d more rows\n", tbl.NumRows()-printed)
	}
}

func cellString(arr arrow.Array, i int) string {
	if arr.IsNull(i) {
		return "<NA>"
	}
	return arr.ValueStr(i)
}
