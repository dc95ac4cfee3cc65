// Package session manages the lifetime of comparison sessions.
//
// Each Session owns exactly one overlay.Registry. The registry is created
// empty when the session starts and discarded when it ends; nothing is
// persisted.
//
//	manager := session.NewManager(session.DefaultConfig(), logger)
//	defer manager.Shutdown(ctx)
//
//	sess, err := manager.Create(clientIP)
//	if err != nil {
//	    return err
//	}
//	sess.Registry().AddImage(overlay.Image{ID: "pre", Visible: true, Opacity: 1})
//
// # Memory Protection
//
// The Manager enforces a global session limit and a per-IP limit. When the
// global limit is reached, EvictionLRU ends the least recently active
// session to make room; EvictionNone rejects the new session instead.
// Sessions idle for longer than IdleTimeout are ended by a background loop.
package session
