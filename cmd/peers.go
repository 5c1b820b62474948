package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/globepay/meshpay/logx"
)

type PeersConfig struct {
	NodeURL string
}

var peersConfig PeersConfig

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Show the node's mesh connections",
	Run: func(cmd *cobra.Command, args []string) {
		if err := showPeers(peersConfig); err != nil {
			logx.Error("PEERS CLI", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(peersCmd)

	peersCmd.PersistentFlags().StringVarP(&peersConfig.NodeURL, "node-url", "u", "localhost:8645", "node API URL")
}

func showPeers(cfg PeersConfig) error {
	client := newAPIClient(cfg.NodeURL)
	defer client.Close()

	var status struct {
		Address   string   `json:"address"`
		Online    bool     `json:"online"`
		PeerCount int      `json:"peer_count"`
		Peers     []string `json:"peers"`
	}
	if err := client.CallResult(context.Background(), "mesh.status", nil, &status); err != nil {
		return fmt.Errorf("failed to get node status: %w", err)
	}

	fmt.Println("Address:", status.Address)
	fmt.Println("Online:", status.Online)
	fmt.Println("Active connections:", status.PeerCount)
	for _, peerID := range status.Peers {
		fmt.Println("  -", peerID)
	}
	return nil
}
