// Package flowgate is a workflow automation execution engine: it turns
// stored node/edge workflow graphs into linear execution paths, screens
// inbound change notifications (dedup, cooldown, entitlement), and fans each
// accepted event out to every published workflow of the subject.
//
// A run walks the compiled path through a dispatch table of action kinds.
// Per-action problems are recorded on the execution record without aborting
// the run; a Wait step suspends the run behind an external scheduler
// callback, persisting the remainder for later resumption.
//
// The top-level entry point is a Core, constructed over in-memory, SQLite,
// or MongoDB persistence:
//
//	core := flowgate.NewInMemoryCore(flowgate.Config{
//	    Delivery:  delivery.NewHTTPDelivery(),
//	    Scheduler: cronClient,
//	})
//
//	summary, err := core.HandleNotification(ctx, flowgate.Notification{
//	    ResourceID:    "res-1",
//	    MessageNumber: "42",
//	})
//
// The same Core also serves the HTTP surface (notification webhook, resume
// callback, workflow CRUD, execution history) via Listen or HTTPApp.
package flowgate
