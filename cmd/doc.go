// Package cmd implements the command-line interface of dSD. It provides a
// hierarchical command structure for running a node and for inspecting and
// modifying the stores of a running node.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a node and configures it from flags, environment variables
//     (DSD_<FLAG>) and .env files
//   - store: Client commands for the stores of a node (list, get, put, delete)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dsd -help for a list of all commands.
package cmd
