package cmd

import (
	"strings"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"
)

// newAPIClient opens a JSON-RPC client against a running node's API.
func newAPIClient(apiURL string) *jrpc2.Client {
	if !strings.HasPrefix(apiURL, "http") {
		apiURL = "http://" + apiURL
	}
	if !strings.HasSuffix(apiURL, "/rpc") {
		apiURL = strings.TrimSuffix(apiURL, "/") + "/rpc"
	}
	return jrpc2.NewClient(jhttp.NewChannel(apiURL, nil), nil)
}
