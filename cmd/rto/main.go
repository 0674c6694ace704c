package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/max-hoffman/rto"
	"github.com/max-hoffman/rto/memengine"
)

var rootCmd = &cobra.Command{
	Use:           "rto",
	Short:         "Runtime join order optimization over sampled relations",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func newExplainCmd() *cobra.Command {
	var (
		dataPath   string
		configPath string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Search for a join order and print the search trace and plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return explain(cmd.Context(), cmd.OutOrStdout(), dataPath, configPath)
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "", "JSON workload with variables, relations and constraints")
	cmd.Flags().StringVar(&configPath, "config", "", "optional config file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every cutoff join")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func main() {
	rootCmd.AddCommand(newExplainCmd())
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// explain loads the workload at dataPath, searches for a join order and
// writes the round trace, the chosen path and its plan to w.
func explain(ctx context.Context, w io.Writer, dataPath, configPath string) error {
	cfg, err := rto.LoadConfig("RTO_", configPath)
	if err != nil {
		return err
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return err
	}
	defer f.Close()
	ds, err := memengine.LoadDataset(f)
	if err != nil {
		return err
	}

	est := rto.NewEstimator(memengine.NewEngine())
	g, err := rto.NewJoinGraph(ds.Predicates(), ds.Constraints, est, memengine.Sampler{}, cfg)
	if err != nil {
		return err
	}
	best, runErr := g.Run(ctx)

	fmt.Fprint(w, traceTree(g.Rounds()).String())
	if runErr != nil {
		return runErr
	}

	node, err := rto.BuildJoinTree(best, est.Attacher(), ds.Constraints)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "chosen: %s\n", best)
	fmt.Fprintf(w, "plan:\n%s\n", node.String())
	return nil
}

// traceTree renders every round of the search with its surviving paths.
func traceTree(rounds []rto.Round) treeprint.Tree {
	tree := treeprint.New()
	for i, r := range rounds {
		branch := tree.AddMetaBranch(fmt.Sprintf("round %d", i), fmt.Sprintf("limit=%d", r.Limit))
		for _, p := range r.Paths {
			branch.AddMetaNode(string(p.EdgeSample().EstimateEnum.Code()), fmt.Sprintf("%v cost=%d", p.VertexIDs(), p.CumulativeEstimatedCardinality()))
		}
	}
	return tree
}
