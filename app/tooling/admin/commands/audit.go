package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	loadTxCount     int
	loadConcurrency int
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Run a synthetic transaction load against the node's sandbox.",
	RunE: func(cmd *cobra.Command, args []string) error {
		params := []any{map[string]int{
			"tx_count":    loadTxCount,
			"concurrency": loadConcurrency,
		}}
		return rpcCall("kaldrix_runLoadTest", params)
	},
}

var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Run the node's adversarial security scenarios.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return rpcCall("kaldrix_runSecurityTest", nil)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Generate a full validation report from the node.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return rpcCall("kaldrix_generateValidationReport", nil)
	},
}

func init() {
	loadtestCmd.Flags().IntVar(&loadTxCount, "count", 500, "Number of transactions to push through the sandbox.")
	loadtestCmd.Flags().IntVar(&loadConcurrency, "concurrency", 8, "Number of concurrent submitters.")
	rootCmd.AddCommand(loadtestCmd)
	rootCmd.AddCommand(securityCmd)
	rootCmd.AddCommand(validateCmd)
}

// rpcCall performs a single JSON-RPC request against the node and pretty
// prints the result.
func rpcCall(method string, params []any) error {
	req := struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  []any  `json:"params,omitempty"`
		ID      int    `json:"id"`
	}{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	resp, err := http.Post(nodeURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("calling node: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if result.Error != nil {
		return fmt.Errorf("node returned rpc error %d: %s", result.Error.Code, result.Error.Message)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result.Result, "", "  "); err != nil {
		return err
	}

	fmt.Println(pretty.String())

	return nil
}
