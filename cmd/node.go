package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/globepay/meshpay/api"
	"github.com/globepay/meshpay/config"
	"github.com/globepay/meshpay/db"
	"github.com/globepay/meshpay/exception"
	"github.com/globepay/meshpay/gossip"
	"github.com/globepay/meshpay/ledger"
	"github.com/globepay/meshpay/logx"
	"github.com/globepay/meshpay/monitoring"
	"github.com/globepay/meshpay/p2p"
	"github.com/globepay/meshpay/peer"
	"github.com/globepay/meshpay/service"
	"github.com/globepay/meshpay/store"
	"github.com/globepay/meshpay/syncer"
	"github.com/globepay/meshpay/wallet"
)

type NodeFlags struct {
	ConfigFile string
	TuningFile string
	Offline    bool
}

var nodeFlags NodeFlags

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a MeshPay node",
	Long:  "Runs the mesh overlay, gossip router, local ledger store and sync coordinator as one process.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runNode(nodeFlags); err != nil {
			logx.Error("NODE", "Node stopped with error: ", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)

	nodeCmd.PersistentFlags().StringVarP(&nodeFlags.ConfigFile, "config", "c", "config.yml", "node config file")
	nodeCmd.PersistentFlags().StringVarP(&nodeFlags.TuningFile, "tuning", "t", "meshpay.ini", "tuning file for gossip/overlay/sync sections")
	nodeCmd.PersistentFlags().BoolVar(&nodeFlags.Offline, "offline", false, "start with ledger sync disabled")
}

func runNode(flags NodeFlags) error {
	cfg, err := config.LoadNodeConfig(flags.ConfigFile)
	if err != nil {
		return err
	}
	gossipCfg, err := config.LoadGossipConfig(flags.TuningFile)
	if err != nil {
		return err
	}
	overlayCfg, err := config.LoadOverlayConfig(flags.TuningFile)
	if err != nil {
		return err
	}
	syncCfg, err := config.LoadSyncConfig(flags.TuningFile)
	if err != nil {
		return err
	}

	provider, err := db.NewProvider(cfg.DBBackend, cfg.DataDir)
	if err != nil {
		return err
	}
	ledgerStore, err := store.NewLedgerStore(provider)
	if err != nil {
		provider.Close()
		return err
	}
	defer ledgerStore.MustClose()

	keypair, err := loadIdentity(ledgerStore, cfg.KeyFile)
	if err != nil {
		return err
	}
	logx.Info("NODE", "Device address: ", keypair.Address)

	transport, err := p2p.NewTransport(keypair.PrivateKey, cfg.ListenAddr, cfg.BootstrapPeers)
	if err != nil {
		return err
	}

	overlay := peer.NewOverlay(transport, overlayCfg)
	router := gossip.NewRouter(gossip.RouterConfigFrom(gossipCfg), overlay, ledgerStore)
	overlay.SetMessageHandler(router.HandleMessage)
	overlay.SetConnectHook(router.SendPeerList)
	overlay.SetAnnounceFunc(router.BroadcastAnnounce)

	ledgerClient := ledger.NewClient(cfg.LedgerEndpoint)
	defer ledgerClient.Close()
	coordinator := syncer.NewCoordinator(ledgerStore, ledgerClient, syncCfg)

	txService := service.NewTxService(keypair, ledgerStore, router)
	apiServer := api.NewServer(txService, overlay, coordinator)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	overlay.Start(ctx)
	coordinator.Start(ctx)
	if !flags.Offline && cfg.LedgerEndpoint != "" {
		coordinator.SetOnline(ctx, true)
	}

	if cfg.MetricsAddr != "" {
		exception.SafeGo("MetricsServer", func() {
			monitoring.StartMetricsServer(cfg.MetricsAddr)
		})
	}
	if cfg.APIAddr != "" {
		exception.SafeGo("APIServer", func() {
			apiServer.Serve(cfg.APIAddr)
		})
	}

	logx.Info("NODE", "MeshPay node running, peer id ", overlay.SelfID())
	<-ctx.Done()
	logx.Info("NODE", "Shutting down")
	return overlay.Close()
}

// loadIdentity prefers the identity persisted in the store; a configured key
// file seeds it on first run so devices can restore a backed-up key.
func loadIdentity(ledgerStore *store.LedgerStore, keyFile string) (*wallet.Keypair, error) {
	keypair, err := ledgerStore.GetIdentity()
	if err != nil {
		return nil, err
	}
	if keypair != nil {
		return keypair, nil
	}
	if keyFile != "" {
		if _, statErr := os.Stat(keyFile); statErr == nil {
			keypair, err = wallet.LoadOrCreate(keyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load key file %s: %w", keyFile, err)
			}
			if err := ledgerStore.PutIdentity(keypair); err != nil {
				return nil, err
			}
			return keypair, nil
		}
	}
	return ledgerStore.LoadOrCreateIdentity()
}
