package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "List samples, optionally filtered by --run",
	RunE:  runSamples,
}

var samplesRunID string

func init() {
	samplesCmd.Flags().StringVar(&samplesRunID, "run", "", "Filter samples to one run id")
}

func runSamples(cmd *cobra.Command, args []string) error {
	client := newClient()

	path := "/sample"
	if samplesRunID != "" {
		path = "/run/" + samplesRunID + "/sample"
	}

	var resp struct {
		Samples []map[string]any `json:"samples"`
	}
	if err := client.getJSON(path, &resp); err != nil {
		return err
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp.Samples)
	}

	rows := make([][]string, 0, len(resp.Samples))
	for _, s := range resp.Samples {
		rows = append(rows, []string{
			fmt.Sprint(s["sampleID"]),
			fmt.Sprint(s["plateID"]),
			fmt.Sprint(s["runID"]),
			fmt.Sprint(s["result"]),
		})
	}
	printTable([]string{"Sample", "Plate", "Run", "Result"}, rows)
	return nil
}
