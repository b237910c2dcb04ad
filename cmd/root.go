package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dSD/cmd/serve"
	"github.com/ValentinKolb/dSD/cmd/store"
	"github.com/ValentinKolb/dSD/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dsd",
		Short: "replicated service-discovery store",
		Long: fmt.Sprintf(`dSD (v%s)

A replicated store for service discovery written in Go. Every node keeps a
full copy of all entries, writes are pushed to all peers in batches and a
periodic anti-entropy pull makes the nodes converge. Conflicts are resolved
by last-writer-wins.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dSD",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dSD v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(store.StoreCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer used for store-sync requests (json, gob, binary)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
