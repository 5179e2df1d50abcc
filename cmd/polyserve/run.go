package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/nabbar/polyserve/connpool"
	"github.com/nabbar/polyserve/harnesslog"
	liblog "github.com/nabbar/polyserve/logger"
	"github.com/nabbar/polyserve/schedule"
	"github.com/nabbar/polyserve/server"
	"github.com/nabbar/polyserve/server/httpd"
	"github.com/nabbar/polyserve/supervisor"
	"github.com/nabbar/polyserve/terminus"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start the server harness",
	RunE:  runHarness,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runHarness(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	log := harnesslog.New(liblog.FuncLog(func() liblog.Logger { return nil }))

	sched := schedule.New(ctx, 0)
	defer sched.Destroy()

	poolCfg := connpool.Config{MaxConnections: 1024, ConnectionTimeout: 0}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	adapter := httpd.New(mux, poolCfg)
	srv := server.New(adapter, server.Config{
		Hostname: "0.0.0.0",
		Port:     basePort,
		Protocol: server.ProtocolHTTP,
		Pool:     poolCfg,
	}, sched, log, nil)

	sup := supervisor.New([]supervisor.Entry{{Server: srv, Port: basePort}})

	if errs := sup.Start(ctx); len(errs) > 0 {
		return errs[0]
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", sup.HealthHandler())
	healthMux.HandleFunc("/metrics", sup.MetricsHandler())
	healthMux.HandleFunc("/servers", sup.ServersHandler())

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf(":%d", basePort+100), healthMux)
	}()

	term := terminus.New(terminus.Config{})
	_ = term.Register(srv)

	term.Wait(ctx)
	return nil
}
