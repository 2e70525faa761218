package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dshills/cinematch/internal/config"
	"github.com/dshills/cinematch/internal/encoder"
	"github.com/dshills/cinematch/internal/engine"
	"github.com/dshills/cinematch/internal/logging"
	"github.com/dshills/cinematch/internal/store"
	"github.com/dshills/cinematch/pkg/types"
)

var (
	bundleFlag string
	jsonFlag   bool
)

func main() {
	// Missing .env is fine; it only seeds CINEMATCH_* variables.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "cinematch",
		Short:         "Query a movie embedding bundle",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&bundleFlag, "bundle", "", "embedding bundle path (overrides config)")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "emit JSON instead of a table")

	root.AddCommand(queryCmd())
	root.AddCommand(similarCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(infoCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and wires the store, encoder, and engine.
// The caller owns the returned store and must Close it.
func setup() (*store.Store, *engine.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	path := cfg.BundlePath
	if bundleFlag != "" {
		path = bundleFlag
	}
	st, err := store.Open(path, store.Options{BaseDir: cfg.BaseDir})
	if err != nil {
		return nil, nil, err
	}

	enc := encoder.New(encoder.Config{
		KeywordOnly:        cfg.KeywordOnly,
		MemoryCeilingBytes: uint64(cfg.MemoryCeilingMB) << 20,
		RemoteURL:          cfg.RemoteEncoderURL,
		CacheSize:          cfg.CacheSize,
	}, encoder.WithTransform(st.Projection()))

	eng := engine.New(st, enc, engine.WithWorkers(cfg.Workers))
	return st, eng, nil
}

func queryCmd() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Recommend movies for a free-text description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, eng, err := setup()
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := eng.RecommendByQuery(cmd.Context(), strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			return printRecommendations(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().IntVarP(&k, "top", "k", 10, "number of results")
	return cmd
}

func similarCmd() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "similar <movie-id>",
		Short: "Recommend movies similar to a known movie",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if _, err := fmt.Sscan(args[0], &id); err != nil {
				return fmt.Errorf("movie id must be an integer: %q", args[0])
			}

			st, eng, err := setup()
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := eng.RecommendSimilar(cmd.Context(), id, k)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no movie with id %d in the bundle\n", id)
				return nil
			}
			return printRecommendations(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().IntVarP(&k, "top", "k", 10, "number of results")
	return cmd
}

func searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Find movies by title substring",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, eng, err := setup()
			if err != nil {
				return err
			}
			defer st.Close()

			movies := eng.Search(strings.Join(args, " "), limit)
			if jsonFlag {
				return printJSON(cmd.OutOrStdout(), movies)
			}
			for _, m := range movies {
				fmt.Fprintf(cmd.OutOrStdout(), "%8d  %s (%s)\n", m.ID, m.Title, yearLabel(m.Year))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum matches")
	return cmd
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show bundle metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := setup()
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if jsonFlag {
				return printJSON(out, map[string]any{
					"path":       st.Path(),
					"movies":     st.Count(),
					"dimension":  st.Dim(),
					"encoding":   string(st.Encoding()),
					"model":      st.ModelName(),
					"projection": st.Projection() != nil,
					"sql_driver": store.DriverName,
					"build_mode": store.BuildMode,
				})
			}
			fmt.Fprintf(out, "bundle:     %s\n", st.Path())
			fmt.Fprintf(out, "movies:     %d\n", st.Count())
			fmt.Fprintf(out, "dimension:  %d\n", st.Dim())
			fmt.Fprintf(out, "encoding:   %s\n", st.Encoding())
			fmt.Fprintf(out, "model:      %s\n", st.ModelName())
			fmt.Fprintf(out, "projection: %v\n", st.Projection() != nil)
			fmt.Fprintf(out, "driver:     %s (%s)\n", store.DriverName, store.BuildMode)
			return nil
		},
	}
}

func printRecommendations(out io.Writer, recs []types.Recommendation) error {
	if jsonFlag {
		return printJSON(out, recs)
	}
	for _, r := range recs {
		fmt.Fprintf(out, "%3d. %-40s %s  %s\n",
			r.Rank, fmt.Sprintf("%s (%s)", r.Title, yearLabel(r.Year)), r.Explanation, strings.Join(r.Genres, "|"))
	}
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yearLabel(year int16) string {
	if year == 0 {
		return "?"
	}
	return fmt.Sprintf("%d", year)
}
