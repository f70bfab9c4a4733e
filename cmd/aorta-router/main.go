// Command aorta-router runs the routing daemon: it accepts inbound messages
// from configured upstream peers, matches each against a loaded rule set,
// and re-enqueues a copy per matched destination into its own durable spool
// for onward delivery.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ibrb-io/aorta/buffer"
	"github.com/ibrb-io/aorta/cli"
	"github.com/ibrb-io/aorta/cli/viper"
	xlog "github.com/ibrb-io/aorta/log"
	"github.com/ibrb-io/aorta/orchestrator"
	"github.com/ibrb-io/aorta/router"
	"github.com/ibrb-io/aorta/transport/amqp1"
)

const appName = "aorta"

var params = []cli.Param{
	{
		Name:      "bind",
		Usage:     "listening address for inbound connections (reserved, unused: the AMQP 1.0 transport is client-only)",
		FlagKey:   "bind",
		ByDefault: "",
	},
	{
		Name:      "upstream",
		Short:     "U",
		Usage:     "upstream AMQP peer address (host:port) allowed to feed this router, repeatable",
		FlagKey:   "upstream",
		ByDefault: []string{},
	},
	{
		Name:      "spool",
		Usage:     "durable spool directory",
		FlagKey:   "spool_dir",
		ByDefault: "/var/spool/aorta",
	},
	{
		Name:      "routes",
		Usage:     "rule file path or glob, repeatable",
		FlagKey:   "routes",
		ByDefault: []string{},
	},
	{
		Name:      "loglevel",
		Usage:     "log verbosity: debug, info, warning, error",
		FlagKey:   "loglevel",
		ByDefault: "info",
	},
	{
		Name:      "ingress-channel",
		Usage:     "source address this router receives inbound messages from",
		FlagKey:   "ingress_channel",
		ByDefault: "aorta.ingress",
	},
}

func main() {
	root := &cobra.Command{
		Use:           "aorta-router",
		Short:         "rule-based AMQP 1.0 message router",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	if err := cli.SetupCommandParams(root, params); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	conf := viper.ConfigHandler(appName, nil)
	if err := viper.BindFlags(cmd, params, conf.Internals()); err != nil {
		return err
	}
	_ = conf.ReadFile(true)

	lvl, err := xlog.ParseLevel(conf.Get("loglevel").(string))
	if err != nil {
		return err
	}
	log := xlog.WithZero(xlog.ZeroOptions{PrettyPrint: true})
	log.SetLevel(lvl)

	if bind := conf.Get("bind").(string); bind != "" {
		log.Warning("--bind is reserved for a future listening transport and has no effect with the current client-only AMQP 1.0 adapter", "bind", bind)
	}

	upstreams := conf.Internals().GetStringSlice("upstream")
	if len(upstreams) == 0 {
		return fmt.Errorf("at least one upstream peer is required, use -U host:port")
	}
	routePatterns := conf.Internals().GetStringSlice("routes")
	if len(routePatterns) == 0 {
		return fmt.Errorf("at least one --routes file or glob is required")
	}
	spoolDir := conf.Get("spool_dir").(string)
	ingress := conf.Get("ingress_channel").(string)

	watcher, err := router.NewWatcher(routePatterns, log)
	if err != nil {
		return err
	}

	buf, err := buffer.Open(spoolDir, buffer.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = buf.Close() }()

	session, err := amqp1.Open(upstreams[0],
		amqp1.WithLogger(log),
		amqp1.WithName(appName+"-router"),
		amqp1.WithUpstreams(upstreams...),
	)
	if err != nil {
		return err
	}

	orc, err := orchestrator.New(session, buf, upstreams,
		orchestrator.WithLogger(log),
		orchestrator.WithRouter(watcher),
	)
	if err != nil {
		return err
	}
	if err := orc.AddReceiver(ingress); err != nil {
		return err
	}

	log.Infof("aorta-router ready, spool=%s ingress=%s upstreams=%v routes=%v", spoolDir, ingress, upstreams, routePatterns)

	// watcherCtx is ours to cancel; orc.Run installs its own SIGINT/SIGTERM
	// handling on the context it derives internally and returns once every
	// internal goroutine has exited, at which point the rule watcher is
	// stopped too.
	watcherCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(watcherCtx)

	return orc.Run(context.Background())
}
