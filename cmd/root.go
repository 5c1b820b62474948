package cmd

import (
	"os"

	"github.com/globepay/meshpay/logx"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "meshpay",
	Short: "MeshPay offline payment node CLI",
	Long:  "Command line interface for running and managing a MeshPay offline transaction propagation node.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed: ", err)
		os.Exit(1)
	}
}
