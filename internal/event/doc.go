// Package event defines the agent-server event model and its in-process
// distribution.
//
// # Normalization
//
// The agent server delivers either bare events ({"type": ..., "properties": ...})
// or directory-scoped envelopes ({"directory": ..., "payload": {...}}).
// Normalize accepts both and rejects everything else:
//
//	ev, ok := event.Normalize(raw)
//	if !ok {
//	    return // dropped, not an error
//	}
//
// # Bus
//
// Bus is the process-wide fan-out. Listen receives every workspace's events,
// On receives a single workspace's. Delivery is synchronous and ordered by
// registration; late subscribers never see earlier events.
//
// # Views
//
// A View is the typed adapter one UI scope holds for one workspace. Events
// are decoded into Variant values so handlers can type-switch:
//
//	view := event.NewView(bus, "ws-1")
//	defer view.Close()
//
//	event.Handle(view, func(p event.PermissionUpdated) {
//	    fmt.Println("permission requested:", p.Title)
//	})
package event
