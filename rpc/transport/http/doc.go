// Package http implements the store-sync protocol over HTTP.
//
// Key Components:
//
//   - httpServerTransport: Implements IRPCServerTransport. Routes are served by a
//     chi router:
//
//     POST /store-sync/{store}   -> SyncHandler.Push, 204
//     GET  /store-sync/{store}   -> SyncHandler.Pull, 200
//     GET  /metrics              -> prometheus text format
//     GET  /health               -> SyncHandler.Health as JSON
//
//     transport.ErrStoreNotFound is answered with 404, transport.ErrBadRequest
//     with 400, every other error with 500. Requests are logged at debug level if
//     the transport is created with debug enabled.
//
//   - httpClientTransport: Implements IRPCClientTransport on a shared http.Client
//     whose timeout bounds every request. Unexpected status codes are returned as
//     *StatusError, which matches the transport errors with errors.Is.
//
// Thread Safety:
//
//	Both transports are safe for concurrent use.
package http
