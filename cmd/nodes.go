package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"LinkFM/config"
	"LinkFM/node"
)

var nodesFile string

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Probe the configured node pool",
	Long: `Reads the node pool definition and queries every node's info and stats
endpoints over HTTP, printing one status line per node. Nodes that do not
answer are listed as down with the error.`,
	Run: func(cmd *cobra.Command, args []string) {
		path := nodesFile
		if path == "" {
			path = config.Load().NodesFile
		}
		configs, err := config.LoadNodes(path)
		if err != nil {
			log.Fatalf("failed to load node pool from %s: %v", path, err)
		}
		if len(configs) == 0 {
			fmt.Println("node pool is empty")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESS\tVERSION\tPLAYERS\tCPU\tUPTIME\tSOURCES")
		for _, nc := range configs {
			addr := fmt.Sprintf("%s:%d", nc.Host, nc.Port)
			res, err := node.Probe(ctx, node.Options{
				Name:     nc.Name,
				Host:     nc.Host,
				Port:     nc.Port,
				Password: nc.Password,
				SSL:      nc.SSL,
			})
			if err != nil {
				fmt.Fprintf(w, "%s\t%s\tdown: %v\t\t\t\t\n", nc.Name, addr, err)
				continue
			}
			uptime := (time.Duration(res.Stats.Uptime) * time.Millisecond).Truncate(time.Second)
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%.1f%%\t%s\t%s\n",
				nc.Name, addr, res.Version,
				res.Stats.PlayingPlayers, res.Stats.Players,
				res.Stats.CPU.SystemLoad*100, uptime,
				strings.Join(res.Sources, ","))
		}
		if err := w.Flush(); err != nil {
			log.Fatalf("failed to print node table: %v", err)
		}
	},
}

func init() {
	nodesCmd.Flags().StringVar(&nodesFile, "nodes-file", "", "node pool file (defaults to NODES_FILE)")
	rootCmd.AddCommand(nodesCmd)
}
