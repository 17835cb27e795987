// File: cmd/stackr/graph.go
// Brief: Dependency graph inspection (order listing and DOT export).

package main

import (
	"fmt"

	"github.com/emicklei/dot"
	"github.com/spf13/cobra"

	"github.com/example/stackr/internal/config"
)

func newGraphCommand(opts *config.Options) *cobra.Command {
	format := "order"
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the resolved dependency graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, err := loadGraph(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "order":
				for i, name := range graph.ApplyOrder() {
					fmt.Fprintf(out, "%d. %s\n", i+1, name)
				}
				return nil
			case "dot":
				g := dot.NewGraph(dot.Directed)
				nodes := map[string]dot.Node{}
				for _, s := range graph.Stacks() {
					nodes[s.Name] = g.Node(s.Name)
				}
				for _, edge := range graph.Edges() {
					// Arrow points dependency -> dependent (apply direction).
					g.Edge(nodes[edge[1]], nodes[edge[0]])
				}
				fmt.Fprintln(out, g.String())
				return nil
			default:
				return fmt.Errorf("unknown format %q (expected order or dot)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", format, "Output format: order or dot")
	return cmd
}
