package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"eufy-bridge/internal/catalog"
)

var recordingsLimit int

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "Browse saved recordings",
	Long:  `Reads the local recordings catalog written by the monitor.`,
}

var recordingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recordings, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustSettings()

		store, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			fmt.Printf("Error opening catalog: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		recs, err := store.List(context.Background(), recordingsLimit)
		if err != nil {
			fmt.Printf("Error listing recordings: %v\n", err)
			os.Exit(1)
		}

		// --- JSON OUTPUT ---
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(recs); err != nil {
				fmt.Printf("Error encoding JSON: %v\n", err)
				os.Exit(1)
			}
			return
		}

		if len(recs) == 0 {
			fmt.Println("No recordings yet.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tLENGTH\tSIZE\tREASON\tFILE")
		fmt.Fprintln(w, "--\t-------\t------\t----\t------\t----")

		for _, r := range recs {
			reason := string(r.Reason)
			if r.Killed {
				reason += " (killed)"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				r.ID,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Duration().Round(time.Second),
				humanBytes(r.Bytes),
				reason,
				r.Path,
			)
		}
		w.Flush()
	},
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(recordingsCmd)
	recordingsCmd.AddCommand(recordingsListCmd)

	recordingsListCmd.Flags().IntVar(&recordingsLimit, "limit", 20, "Maximum rows to show (0 for all)")
}
