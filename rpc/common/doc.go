// Package common provides configuration, protocol constants and logging shared
// by the rpc packages and the command line.
//
// Key Components:
//
//   - ServerConfig: Configuration of a node: identity, peers, served stores, the
//     storage engine, GC and replication parameters, the HTTP endpoint and the log
//     level. Validate reports every invalid value at once.
//
//   - ClientConfig: Configuration of the command line client.
//
//   - MessageType: Names the store-sync operations (push and pull) in logs and
//     metrics. SyncPath builds the store-sync path of a store.
//
//   - Logger: Custom logger factory for dragonboat's logger registry that prints
//     "LEVEL | name | message" lines. InitLoggers sets the level of every logger
//     used by this module.
package common
