package api

import (
	"context"
	"net/http"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/globepay/meshpay/logx"
	"github.com/globepay/meshpay/service"
	"github.com/globepay/meshpay/transaction"
)

// PeerView is the overlay surface the API exposes for observability.
type PeerView interface {
	ConnectedPeerIDs() []string
	Count() int
}

// SyncControl is the coordinator surface the API drives.
type SyncControl interface {
	RunOnce(ctx context.Context) error
	SetOnline(ctx context.Context, online bool)
	IsOnline() bool
}

// Server is the narrow JSON-RPC surface the external presentation layer
// calls. It renders nothing; it only moves data in and out of the core.
type Server struct {
	svc   *service.TxService
	peers PeerView
	sync  SyncControl
}

// NewServer wires the API over the service, overlay and coordinator.
func NewServer(svc *service.TxService, peers PeerView, sync SyncControl) *Server {
	return &Server{svc: svc, peers: peers, sync: sync}
}

type createTxParams struct {
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Metadata string `json:"metadata,omitempty"`
}

type getTxParams struct {
	Hash string `json:"hash"`
}

type listTxParams struct {
	Status string `json:"status"`
}

type importPayloadParams struct {
	Payload string `json:"payload"`
}

type payloadResult struct {
	Payload string `json:"payload"`
}

type statusResult struct {
	Address   string   `json:"address"`
	Online    bool     `json:"online"`
	PeerCount int      `json:"peer_count"`
	Peers     []string `json:"peers"`
}

type setOnlineParams struct {
	Online bool `json:"online"`
}

type okResult struct {
	Ok bool `json:"ok"`
}

func (s *Server) methods() handler.Map {
	return handler.Map{
		"mesh.createTransaction": handler.New(func(ctx context.Context, params createTxParams) (*transaction.OfflineTransaction, error) {
			return s.svc.CreateTransaction(params.To, params.Amount, params.Metadata)
		}),
		"mesh.getTransaction": handler.New(func(ctx context.Context, params getTxParams) (*transaction.OfflineTransaction, error) {
			return s.svc.GetTransaction(params.Hash)
		}),
		"mesh.listTransactions": handler.New(func(ctx context.Context, params listTxParams) ([]*transaction.OfflineTransaction, error) {
			return s.svc.ListByStatus(transaction.Status(params.Status))
		}),
		"mesh.exportPayload": handler.New(func(ctx context.Context, params getTxParams) (*payloadResult, error) {
			data, err := s.svc.ExportPayload(params.Hash)
			if err != nil {
				return nil, err
			}
			return &payloadResult{Payload: string(data)}, nil
		}),
		"mesh.importPayload": handler.New(func(ctx context.Context, params importPayloadParams) (*transaction.OfflineTransaction, error) {
			return s.svc.ImportPayload([]byte(params.Payload))
		}),
		"mesh.status": handler.New(func(ctx context.Context) (*statusResult, error) {
			return &statusResult{
				Address:   s.svc.SelfAddress(),
				Online:    s.sync.IsOnline(),
				PeerCount: s.peers.Count(),
				Peers:     s.peers.ConnectedPeerIDs(),
			}, nil
		}),
		"mesh.setOnline": handler.New(func(ctx context.Context, params setOnlineParams) (*okResult, error) {
			s.sync.SetOnline(ctx, params.Online)
			return &okResult{Ok: true}, nil
		}),
		"mesh.syncNow": handler.New(func(ctx context.Context) (*okResult, error) {
			if err := s.sync.RunOnce(ctx); err != nil {
				return nil, err
			}
			return &okResult{Ok: true}, nil
		}),
	}
}

// Serve blocks serving the JSON-RPC bridge on addr. Run it under
// exception.SafeGo.
func (s *Server) Serve(addr string) {
	bridge := jhttp.NewBridge(s.methods(), &jhttp.BridgeOptions{
		Server: &jrpc2.ServerOptions{Concurrency: 4},
	})
	defer bridge.Close()

	mux := http.NewServeMux()
	mux.Handle("/rpc", bridge)
	logx.Info("API", "JSON-RPC API listening on ", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logx.Error("API", "API server stopped: ", err)
	}
}
