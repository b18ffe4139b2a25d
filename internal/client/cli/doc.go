// Package cli provides the interactive chat client command line.
//
// It wires configuration, the local cache, the remote identity and record
// clients, the session store and the services, then runs a REPL. Every
// command belongs to a route of the app's route table and is checked by the
// route guard before it runs: anonymous-only commands are refused once
// signed in, auth-only commands send the user to login first and resume
// after a successful login.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
