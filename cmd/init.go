package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/globepay/meshpay/logx"
	"github.com/globepay/meshpay/wallet"
)

type InitConfig struct {
	KeyFile string
}

var initConfig InitConfig

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a device identity key",
	Long: `Generates an ed25519 identity keypair and writes the seed to the key file.
A node started with this key file adopts the identity on first run.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := initIdentity(initConfig); err != nil {
			logx.Error("INIT CLI", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.PersistentFlags().StringVarP(&initConfig.KeyFile, "key-file", "f", "./data/identity.key", "path to write the identity seed")
}

func initIdentity(cfg InitConfig) error {
	keypair, err := wallet.LoadOrCreate(cfg.KeyFile)
	if err != nil {
		return err
	}
	fmt.Println("Device address:", keypair.Address)
	fmt.Println("Key file:", cfg.KeyFile)
	return nil
}
