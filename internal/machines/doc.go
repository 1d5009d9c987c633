// Package machines is a client for a hosted machine orchestration API
// (Fly.io Machines plus its GraphQL API).
//
// Remote sandboxes live in one app per owner and sandbox type, named
// app-{type}-{ownerId}. A Client provisions those apps, creates machines
// with region fallback, runs shell commands on them and reads or writes
// files through those commands:
//
//	c := machines.New(cfg.Remote)
//	app, err := c.ProvisionApp(ctx, "preview", "alice")
//	m, err := c.CreateMachine(ctx, machines.CreateRequest{Type: "preview", Owner: "alice", Region: "us"})
//	res, err := c.Execute(ctx, m.Ref(), "npm test", 2*time.Minute)
//
// # Retries
//
// Every API call is retried with a fixed delay (three attempts by
// default). Client errors other than 408 and 429 are not retried.
//
// # Region Fallback
//
// CreateMachine tries each candidate region in turn. A machine that is
// created but never reaches the started state is force-destroyed before
// the next region is tried. When every region fails the error is a
// *CreateError listing each region's cause.
//
// # Command Results
//
// A command that runs and exits non-zero is not a Go error: Execute
// returns the exit code and output. The file helpers go further and never
// return errors at all; they return a FileResult carrying either a value
// or the reason the operation failed.
package machines
