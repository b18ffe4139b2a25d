package cli

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/dmitrijs2005/chatwithyou/internal/client/guard"
)

type command struct {
	name  string
	usage string
	// route is the screen the command belongs to; "" means unguarded.
	route string
	// noReturn keeps the command from being resumed after a login it
	// triggered.
	noReturn bool
	// authFlow marks commands that can sign the user in.
	authFlow bool
	run      func(a *App, ctx context.Context, args []string) error
}

type invocation struct {
	cmd  *command
	args []string
}

// prompt shows who is signed in.
func (a *App) prompt() string {
	st := a.store.State()
	switch {
	case st.IsLoading:
		return "cwy (...)> "
	case st.User != nil:
		return "cwy (" + st.User.Email + ")> "
	default:
		return "cwy> "
	}
}

// runREPL reads commands until EOF, "exit" or "quit".
func (a *App) runREPL(ctx context.Context) {
	for {
		a.printf("%s", a.prompt())
		line, err := a.reader.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			if quit := a.dispatch(ctx, line); quit {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				a.logger.Error(ctx, "read command", "error", err)
			}
			a.println()
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// dispatch runs one command line. It reports whether the REPL should stop.
func (a *App) dispatch(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	name, args := strings.ToLower(parts[0]), parts[1:]

	if name == "exit" || name == "quit" {
		a.println("Bye!")
		return true
	}

	cmd, ok := a.commands[name]
	if !ok {
		a.println("Unknown command:", name)
		return false
	}
	a.invoke(ctx, cmd, args)
	return false
}

// navigate asks the guard about route, waiting out the initial session
// check if it is still running.
func (a *App) navigate(ctx context.Context, route string) guard.Decision {
	d := a.guard.Navigate(a.store.State(), route)
	if d.Action != guard.Wait {
		return d
	}
	if err := a.store.AwaitReady(ctx); err != nil {
		return d
	}
	return a.guard.Navigate(a.store.State(), route)
}

func (a *App) invoke(ctx context.Context, cmd *command, args []string) {
	if cmd.route != "" {
		d := a.navigate(ctx, cmd.route)
		switch {
		case d.Action == guard.Wait:
			a.println("Still checking your session, try again.")
			return
		case d.Action == guard.Redirect && d.Target == a.guard.LoginPath:
			a.println("Please log in first.")
			if !cmd.noReturn {
				a.returnTo = &invocation{cmd: cmd, args: args}
			}
			a.invoke(ctx, a.commands["login"], nil)
			return
		case d.Action == guard.Redirect:
			a.println("You are already signed in.")
			a.returnTo = nil
			a.home(ctx)
			return
		}
	}

	before := a.store.State().LastError
	err := cmd.run(a, ctx, args)
	if err != nil {
		a.println("Error:", err)
	} else if st := a.store.State(); st.LastError != "" && st.LastError != before {
		a.println("Warning:", st.LastError)
	}

	a.resume(ctx, cmd)
}

// resume runs the command interrupted by a login once someone is signed
// in. Any other command run while signed out abandons it.
func (a *App) resume(ctx context.Context, last *command) {
	inv := a.returnTo
	if inv == nil || inv.cmd == last {
		return
	}
	if a.store.State().User == nil {
		if !last.authFlow {
			a.returnTo = nil
		}
		return
	}
	a.returnTo = nil
	if a.guard.AfterLogin(inv.cmd.route) != inv.cmd.route {
		a.home(ctx)
		return
	}
	a.invoke(ctx, inv.cmd, inv.args)
}

func (a *App) help(_ context.Context, _ []string) error {
	st := a.store.State()
	names := make([]string, 0, len(a.commands))
	for n, c := range a.commands {
		if c.name != n {
			continue
		}
		p, _ := a.guard.Policy(c.route)
		if c.route != "" && ((p == guard.RequiresAuth && st.User == nil) || (p == guard.RequiresAnonymous && st.User != nil)) {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)

	a.println("Available commands:")
	for _, n := range names {
		a.printf("  %-16s %s\n", n, a.commands[n].usage)
	}
	a.printf("  %-16s %s\n", "exit", "leave the program")
	if st.User == nil {
		a.println("Other commands need you to log in first.")
	}
	return nil
}
