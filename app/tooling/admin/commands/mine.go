package commands

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Force a single mining attempt on the node.",
	Run:   mineRun,
}

func init() {
	rootCmd.AddCommand(mineCmd)
}

func mineRun(cmd *cobra.Command, args []string) {
	resp, err := http.Post(fmt.Sprintf("%s/v1/node/mine", url), "application/json", nil)
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var result struct {
		Status string `json:"status"`
		Error  string `json:"error"`
		Block  struct {
			Hash  string `json:"hash"`
			Block struct {
				Number uint64 `json:"number"`
			} `json:"block"`
		} `json:"block"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatal(err)
	}

	if result.Error != "" {
		log.Fatal(result.Error)
	}

	fmt.Println("status:", result.Status)
	if result.Block.Hash != "" {
		fmt.Println("block:", result.Block.Block.Number)
		fmt.Println("hash:", result.Block.Hash)
	}
}
