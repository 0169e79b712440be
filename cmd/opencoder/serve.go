// ABOUTME: The serve command: watcher, reconciler, connection manager, attention tracker and API
// ABOUTME: Components run under one errgroup and stop together on signal or failure

package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/shekohex/opencoder-sub000/internal/api"
	"github.com/shekohex/opencoder-sub000/internal/attention"
	"github.com/shekohex/opencoder-sub000/internal/coder"
	"github.com/shekohex/opencoder-sub000/internal/event"
	"github.com/shekohex/opencoder-sub000/internal/reconcile"
)

func runServe(ctx context.Context) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.coderClient()
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    opencoder %s\n\n", version)
	configPath := a.configPath
	if configPath == "" {
		configPath = "(defaults)"
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Coder:     %s\n", client.BaseURL())
	green.Print("    ▶ ")
	fmt.Printf("API:       http://%s\n\n", a.cfg.Server.Addr)

	opts := a.endpointOptions(ctx, client)
	bus := event.NewBus(a.logger)

	yellow := color.New(color.FgYellow)
	tracker := attention.NewTracker(bus, func(it attention.Item) {
		yellow.Print("    ⚑ ")
		fmt.Printf("%s: %s (%s)\n", it.WorkspaceID, it.Title, it.Kind)
	}, a.logger)
	defer tracker.Close()

	manager := a.newManager(client, opts, bus, tracker.Forget)
	defer manager.Close()

	watcher := coder.NewWatcher(client, a.cfg.Workspaces.RefreshInterval, a.logger)
	detach := reconcile.NewReconciler(manager, a.logger).Attach(watcher)
	defer detach()

	server := api.New(api.Config{
		Listen: a.cfg.Server.Addr,
		Token:  a.cfg.Server.Token,
	}, manager, watcher, tracker, bus, a.logger)

	a.logger.Info("starting opencoder",
		"coder_url", client.BaseURL(),
		"wildcard_hostname", opts.WildcardHostname,
		"listen", a.cfg.Server.Addr,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return server.Start(gctx) })
	return g.Wait()
}
