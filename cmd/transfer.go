package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/globepay/meshpay/logx"
	"github.com/globepay/meshpay/transaction"
)

type TransferConfig struct {
	NodeURL  string
	To       string
	Amount   string
	Metadata string
	Verbose  bool
}

var transferConfig TransferConfig

var transferCmd = &cobra.Command{
	Use:   "transfer [flags]",
	Short: "Create and flood an offline transfer",
	Long: `Signs a value transfer on the running node and floods it across the mesh.
The node signs with its own device identity; the transaction reconciles with
the ledger on the next sync cycle.

Examples:
  # Transfer 1000 units to an address
  transfer -t 5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY -a 1_000

  # Attach a note
  transfer -t 5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY -a 500 -m "lunch"`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := transfer(transferConfig); err != nil {
			logx.Error("TRANSFER CLI", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(transferCmd)

	transferCmd.PersistentFlags().StringVarP(&transferConfig.NodeURL, "node-url", "u", "localhost:8645", "node API URL")
	transferCmd.PersistentFlags().StringVarP(&transferConfig.To, "to", "t", "", "address of recipient")
	transferCmd.PersistentFlags().StringVarP(&transferConfig.Amount, "amount", "a", "", "amount as a decimal string")
	transferCmd.PersistentFlags().StringVarP(&transferConfig.Metadata, "metadata", "m", "", "optional transfer note")
	transferCmd.PersistentFlags().BoolVarP(&transferConfig.Verbose, "verbose", "v", false, "verbose output")
}

func transfer(cfg TransferConfig) error {
	client := newAPIClient(cfg.NodeURL)
	defer client.Close()

	params := map[string]string{
		"to":       cfg.To,
		"amount":   strings.ReplaceAll(cfg.Amount, "_", ""),
		"metadata": cfg.Metadata,
	}
	var tx transaction.OfflineTransaction
	if err := client.CallResult(context.Background(), "mesh.createTransaction", params, &tx); err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	fmt.Println("Transaction hash:", tx.Hash)
	fmt.Println("Nonce:", tx.Nonce)
	fmt.Println("Mesh propagated:", tx.MeshPropagated)
	if cfg.Verbose {
		logx.Debug("TRANSFER CLI", fmt.Sprintf("Created transaction: %+v", tx))
	}
	if !tx.MeshPropagated {
		fmt.Println("No mesh peers reachable; use 'meshpay export' to hand the payload over manually.")
	}
	return nil
}
