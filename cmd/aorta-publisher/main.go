// Command aorta-publisher runs the store-and-forward outbound daemon: it
// drains its durable spool against one or more upstream AMQP 1.0 peers,
// reconnecting and retrying with backoff on its own, until asked to stop.
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
	"github.com/ibrb-io/aorta/transport/amqp1"
)

const appName = "aorta"

var params = []cli.Param{
	{
		Name:      "upstream",
		Short:     "R",
		Usage:     "upstream AMQP peer address (host:port), repeatable",
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
		Name:      "loglevel",
		Usage:     "log verbosity: debug, info, warning, error",
		FlagKey:   "loglevel",
		ByDefault: "info",
	},
	{
		Name:      "ingress-channel",
		Usage:     "ingress channel name; logged at startup, not otherwise used by the publisher",
		FlagKey:   "ingress_channel",
		ByDefault: "aorta.ingress",
	},
}

func main() {
	root := &cobra.Command{
		Use:           "aorta-publisher",
		Short:         "durable store-and-forward AMQP 1.0 publisher",
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

	upstreams := conf.Internals().GetStringSlice("upstream")
	if len(upstreams) == 0 {
		return fmt.Errorf("at least one upstream peer is required, use -R host:port")
	}
	spoolDir := conf.Get("spool_dir").(string)
	ingress := conf.Get("ingress_channel").(string)

	buf, err := buffer.Open(spoolDir, buffer.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = buf.Close() }()

	session, err := amqp1.Open(upstreams[0], amqp1.WithLogger(log), amqp1.WithName(appName+"-publisher"))
	if err != nil {
		return err
	}

	orc, err := orchestrator.New(session, buf, upstreams, orchestrator.WithLogger(log))
	if err != nil {
		return err
	}

	log.Infof("aorta-publisher ready, spool=%s ingress=%s upstreams=%v", spoolDir, ingress, upstreams)

	// Run installs its own SIGINT/SIGTERM handling and returns once every
	// internal goroutine has exited cleanly.
	return orc.Run(context.Background())
}
