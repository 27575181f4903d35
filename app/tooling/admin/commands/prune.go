package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var pruneOlderThan string

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune committed blocks older than the cutoff. Irreversible.",
	Run:   pruneRun,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().StringVarP(&pruneOlderThan, "older-than", "o", "", "RFC3339 cutoff. Blocks mined before this are removed.")
	pruneCmd.MarkFlagRequired("older-than")
}

func pruneRun(cmd *cobra.Command, args []string) {
	cutoff, err := time.Parse(time.RFC3339, pruneOlderThan)
	if err != nil {
		log.Fatalf("invalid cutoff %q: %s", pruneOlderThan, err)
	}

	body, err := json.Marshal(struct {
		OlderThan time.Time `json:"older_than"`
	}{
		OlderThan: cutoff,
	})
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/node/prune", url), "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var result struct {
		Status string `json:"status"`
		Error  string `json:"error"`
		Pruned uint64 `json:"pruned"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatal(err)
	}

	if result.Error != "" {
		log.Fatal(result.Error)
	}

	fmt.Println("status:", result.Status)
	fmt.Println("pruned:", result.Pruned)
}
