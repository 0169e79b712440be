// ABOUTME: Client-side subcommands: workspaces, watch, login and logout
// ABOUTME: Print human-readable output; logs go to stderr

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/shekohex/opencoder-sub000/internal/auth"
	"github.com/shekohex/opencoder-sub000/internal/coder"
	"github.com/shekohex/opencoder-sub000/internal/endpoint"
	"github.com/shekohex/opencoder-sub000/internal/event"
)

func runWorkspaces(ctx context.Context) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.coderClient()
	if err != nil {
		return err
	}

	list, err := client.Workspaces(ctx)
	if err != nil {
		return fmt.Errorf("listing workspaces: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No workspaces.")
		return nil
	}

	opts := a.endpointOptions(ctx, client)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tOWNER\tSTATUS\tAGENT SERVER")
	fmt.Fprintln(w, "  ----\t-----\t------\t------------")
	for i := range list {
		ws := &list[i]
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", ws.Name, ws.OwnerName, statusColor(ws.LatestBuild.Status), describeEndpoint(client.BaseURL(), ws, opts))
	}
	return w.Flush()
}

func statusColor(s coder.WorkspaceStatus) string {
	switch s {
	case coder.StatusRunning:
		return color.GreenString(string(s))
	case coder.StatusFailed:
		return color.RedString(string(s))
	case coder.StatusStopped, coder.StatusDeleted, coder.StatusCanceled:
		return color.HiBlackString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func describeEndpoint(baseURL string, ws *coder.Workspace, opts endpoint.Options) string {
	res, err := endpoint.Resolve(baseURL, ws, opts)
	if err != nil {
		var epErr *endpoint.Error
		if errors.As(err, &epErr) {
			return color.HiBlackString("(" + string(epErr.Type) + ")")
		}
		return err.Error()
	}
	return res.BaseURL
}

// findWorkspace matches ref against workspace IDs, then names.
func findWorkspace(list []coder.Workspace, ref string) (*coder.Workspace, error) {
	for i := range list {
		if list[i].ID == ref {
			return &list[i], nil
		}
	}
	var matches []*coder.Workspace
	for i := range list {
		if list[i].Name == ref || list[i].OwnerName+"/"+list[i].Name == ref {
			matches = append(matches, &list[i])
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("workspace %q not found", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("workspace name %q is ambiguous; use owner/name or the ID", ref)
	}
}

func runWatch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: opencoder watch <workspace>")
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.coderClient()
	if err != nil {
		return err
	}
	list, err := client.Workspaces(ctx)
	if err != nil {
		return fmt.Errorf("listing workspaces: %w", err)
	}
	ws, err := findWorkspace(list, args[0])
	if err != nil {
		return err
	}

	bus := event.NewBus(a.logger)
	manager := a.newManager(client, a.endpointOptions(ctx, client), bus, nil)
	defer manager.Close()

	view := event.NewView(bus, ws.ID)
	defer view.Close()
	view.OnEvent(printVariant)

	if err := manager.Connect(ctx, ws.ID); err != nil {
		return fmt.Errorf("connecting to %s: %w", ws.Name, err)
	}
	conn, _ := manager.Connection(ws.ID)
	color.New(color.FgGreen).Print("▶ ")
	fmt.Printf("connected to %s at %s\n", ws.Name, conn.BaseURL)

	<-ctx.Done()
	return nil
}

func printVariant(v event.Variant) {
	ts := color.HiBlackString(time.Now().Format("15:04:05"))
	kind := color.CyanString(v.Kind())

	var detail string
	switch e := v.(type) {
	case event.ServerConnected:
		detail = "server connected"
	case event.SessionUpdated:
		detail = e.Info.Title
	case event.SessionIdle:
		detail = "session " + e.SessionID + " idle"
	case event.SessionStatus:
		detail = e.Status.Type
	case event.SessionError:
		kind = color.RedString(v.Kind())
		detail = e.Message()
	case event.MessagePartUpdated:
		detail = truncate(strings.TrimSpace(e.Delta), 80)
	case event.PermissionUpdated:
		kind = color.YellowString(v.Kind())
		detail = e.Title
	case event.PermissionReplied:
		detail = e.PermissionID + " " + e.Response
	case event.TodoUpdated:
		detail = fmt.Sprintf("%d todos", len(e.Todos))
	case event.PtyExited:
		detail = fmt.Sprintf("pty %s exited with %d", e.ID, e.ExitCode)
	case event.FileEdited:
		detail = e.File
	case event.Unknown:
		kind = color.HiBlackString(v.Kind())
	}

	if detail == "" {
		fmt.Printf("%s %s\n", ts, kind)
		return
	}
	fmt.Printf("%s %s %s\n", ts, kind, detail)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func runLogin(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: opencoder login <url> [token]")
	}
	sess := auth.Session{BaseURL: args[0], Token: os.Getenv("CODER_SESSION_TOKEN")}
	if len(args) == 2 {
		sess.Token = args[1]
	}
	sess.BaseURL = strings.TrimRight(strings.TrimSpace(sess.BaseURL), "/")
	if err := sess.Validate(time.Now()); err != nil {
		return err
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// Check the token against the deployment before saving it.
	client := coder.NewClient(sess.BaseURL, sess.Token, &http.Client{Timeout: 30 * time.Second}, a.logger)
	user, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("verifying session: %w", err)
	}

	sessions := auth.NewSessions(a.store, a.logger)
	if err := sessions.Login(ctx, sess); err != nil {
		return err
	}

	color.New(color.FgGreen).Print("✓ ")
	fmt.Printf("Signed in to %s as %s\n", sess.BaseURL, user.Username)
	return nil
}

func runLogout(ctx context.Context) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := auth.NewSessions(a.store, a.logger).Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}
