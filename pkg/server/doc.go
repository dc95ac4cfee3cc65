// Package server exposes overlay sessions over HTTP and WebSocket.
//
// The server owns a chi router with:
//   - A JSON API under /api/sessions for every overlay operation
//   - A WebSocket per session that pushes a snapshot after each change
//   - Upload endpoints that store image payloads
//   - /healthz, /metrics and static viewer assets
//
// # Usage
//
//	sessions := session.NewManager(session.DefaultConfig(), logger)
//	srv := server.New(server.DefaultConfig(), sessions,
//	    server.WithLogger(logger),
//	    server.WithUploadStore(store),
//	)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Run blocks until ctx is cancelled, then shuts the HTTP server down
// gracefully. Ending the sessions themselves is the session manager's job.
//
// # WebSocket Protocol
//
// Clients send one protocol.Command per text frame. The server replies with
// protocol.Message frames: "snapshot" whenever the registry changes, "error"
// for frames that fail to decode, and "ended" when the session goes away.
// Snapshots carry a version; a connection never sends an older version after
// a newer one.
package server
