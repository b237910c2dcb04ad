package store

import (
	"github.com/ValentinKolb/dSD/cmd/util"
	"github.com/ValentinKolb/dSD/lib/peers"
	"github.com/ValentinKolb/dSD/rpc/client"
	"github.com/ValentinKolb/dSD/rpc/common"
	"github.com/ValentinKolb/dSD/rpc/transport/http"
	"github.com/spf13/cobra"
)

var (
	syncClient   *client.SyncClient
	clientConfig *common.ClientConfig

	// StoreCommands represents the store command group
	StoreCommands = &cobra.Command{
		Use:   "store",
		Short: "Inspect and modify the stores of a node",
		Long: `Inspect and modify the stores of a node through its store-sync endpoint.

Writes are applied to the given node only, the other nodes receive them with
their next anti-entropy replication.`,
		PersistentPreRunE: setupStoreClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitEnv)

	// Add common RPC flags to the store command
	util.SetupRPCClientFlags(StoreCommands)

	// Add subcommands
	StoreCommands.AddCommand(listCmd)
	StoreCommands.AddCommand(getCmd)
	StoreCommands.AddCommand(putCmd)
	StoreCommands.AddCommand(delCmd)
}

// setupStoreClient initializes the store-sync client
func setupStoreClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	clientConfig = util.GetClientConfig()

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	syncClient = client.NewSyncClient(http.NewHttpClientTransport(clientConfig.Timeout()), s)
	return nil
}

// node returns the node the commands are sent to
func node() peers.Peer {
	return peers.Peer{ID: "cli", Address: clientConfig.Endpoint}
}
