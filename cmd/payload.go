package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/globepay/meshpay/logx"
	"github.com/globepay/meshpay/transaction"
)

type PayloadConfig struct {
	NodeURL string
	Hash    string
	File    string
}

var payloadConfig PayloadConfig

var exportCmd = &cobra.Command{
	Use:   "export [flags]",
	Short: "Export a transaction as an exchange payload",
	Long:  "Serializes a stored transaction into the GLOBE_PAY_TX envelope for QR or manual hand-over.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := exportPayload(payloadConfig); err != nil {
			logx.Error("EXPORT CLI", err)
		}
	},
}

var importCmd = &cobra.Command{
	Use:   "import [flags]",
	Short: "Import an exchange payload",
	Long:  "Validates a GLOBE_PAY_TX envelope and stores the transaction it carries.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := importPayload(payloadConfig); err != nil {
			logx.Error("IMPORT CLI", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.PersistentFlags().StringVarP(&payloadConfig.NodeURL, "node-url", "u", "localhost:8645", "node API URL")
	exportCmd.PersistentFlags().StringVarP(&payloadConfig.Hash, "hash", "x", "", "transaction hash to export")

	importCmd.PersistentFlags().StringVarP(&payloadConfig.NodeURL, "node-url", "u", "localhost:8645", "node API URL")
	importCmd.PersistentFlags().StringVarP(&payloadConfig.File, "file", "f", "", "file holding the payload (stdin when omitted)")
}

func exportPayload(cfg PayloadConfig) error {
	if cfg.Hash == "" {
		return fmt.Errorf("--hash is required")
	}
	client := newAPIClient(cfg.NodeURL)
	defer client.Close()

	var result struct {
		Payload string `json:"payload"`
	}
	params := map[string]string{"hash": cfg.Hash}
	if err := client.CallResult(context.Background(), "mesh.exportPayload", params, &result); err != nil {
		return fmt.Errorf("failed to export payload: %w", err)
	}
	fmt.Println(result.Payload)
	return nil
}

func importPayload(cfg PayloadConfig) error {
	var data []byte
	var err error
	if cfg.File != "" {
		data, err = os.ReadFile(cfg.File)
	} else {
		data, err = os.ReadFile("/dev/stdin")
	}
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	client := newAPIClient(cfg.NodeURL)
	defer client.Close()

	var tx transaction.OfflineTransaction
	params := map[string]string{"payload": string(data)}
	if err := client.CallResult(context.Background(), "mesh.importPayload", params, &tx); err != nil {
		return fmt.Errorf("failed to import payload: %w", err)
	}
	fmt.Println("Imported transaction:", tx.Hash, "from", tx.From)
	return nil
}
