package serve

import (
	"strings"

	cmdUtil "github.com/ValentinKolb/dSD/cmd/util"
	"github.com/ValentinKolb/dSD/lib/peers"
	"github.com/ValentinKolb/dSD/rpc/common"
	"github.com/ValentinKolb/dSD/rpc/server"
	"github.com/ValentinKolb/dSD/rpc/transport/http"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a dSD node",
		Long:    `Start a dSD node with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DSD_<flag> (e.g. DSD_REPLICATION_INTERVAL=30s)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitEnv)

	defaults := common.DefaultServerConfig()

	// add flags
	key := "node-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Unique ID of this node (e.g. 'node-1'). A random ID is generated if empty, it must then not appear in --peers"))

	key = "peers"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of all nodes in the format 'node-1=http://10.0.0.1:8080,node-2=http://10.0.0.2:8080'. The entry of this node is ignored"))

	key = "stores"
	ServeCmd.PersistentFlags().String(key, strings.Join(defaults.Stores, ","), cmdUtil.WrapString("Comma-separated list of the stores served by this node"))

	key = "engine"
	ServeCmd.PersistentFlags().String(key, string(defaults.Engine), cmdUtil.WrapString("Local store engine: memory (maple) or disk (oak)"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, defaults.DataDir, cmdUtil.WrapString("Directory of the disk engine, every store uses a sub directory"))

	key = "tombstone-max-age"
	ServeCmd.PersistentFlags().Duration(key, defaults.TombstoneMaxAge, cmdUtil.WrapString("How long deletes are kept before they are garbage collected"))

	key = "gc-interval"
	ServeCmd.PersistentFlags().Duration(key, defaults.GCInterval, cmdUtil.WrapString("Interval of the garbage collection of expired entries"))

	key = "max-batch-size"
	ServeCmd.PersistentFlags().Int(key, defaults.MaxBatchSize, cmdUtil.WrapString("Max number of entries pushed to a peer in one request"))

	key = "queue-size"
	ServeCmd.PersistentFlags().Int(key, defaults.QueueSize, cmdUtil.WrapString("Max number of entries queued per peer, the oldest entries are dropped if a peer can not keep up"))

	key = "remote-update-interval"
	ServeCmd.PersistentFlags().Duration(key, defaults.RemoteUpdateInterval, cmdUtil.WrapString("Interval in which the peer set of the push replication is refreshed"))

	key = "replication-interval"
	ServeCmd.PersistentFlags().Duration(key, defaults.ReplicationInterval, cmdUtil.WrapString("Interval of the anti-entropy replication pulling the state of all peers"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, defaults.TimeoutSecond, cmdUtil.WrapString("Timeout in seconds of requests to other nodes"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, defaults.Endpoint, cmdUtil.WrapString("The address on which the API will listen (e.g. 0.0.0.0:8080)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, defaults.LogLevel, cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.NodeID = viper.GetString("node-id")
	serveCmdConfig.Engine = common.StoreEngine(viper.GetString("engine"))
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TombstoneMaxAge = viper.GetDuration("tombstone-max-age")
	serveCmdConfig.GCInterval = viper.GetDuration("gc-interval")
	serveCmdConfig.MaxBatchSize = viper.GetInt("max-batch-size")
	serveCmdConfig.QueueSize = viper.GetInt("queue-size")
	serveCmdConfig.RemoteUpdateInterval = viper.GetDuration("remote-update-interval")
	serveCmdConfig.ReplicationInterval = viper.GetDuration("replication-interval")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	// parse stores
	serveCmdConfig.Stores = nil
	for _, name := range strings.Split(viper.GetString("stores"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			serveCmdConfig.Stores = append(serveCmdConfig.Stores, name)
		}
	}

	// parse peers
	cluster, err := peers.ParsePeers(viper.GetString("peers"))
	if err != nil {
		return errors.Wrap(err, "invalid peers")
	}
	serveCmdConfig.Peers = cluster

	// generate a node id if none is set
	if serveCmdConfig.NodeID == "" {
		serveCmdConfig.NodeID = uuid.NewString()
	}

	return serveCmdConfig.Validate()
}

// run starts the dSD node
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	serv, err := server.NewRPCServer(
		*serveCmdConfig,
		http.NewHttpServerTransport(serveCmdConfig.LogLevel == "debug"),
		s,
	)
	if err != nil {
		return err
	}

	return serv.Serve()
}
