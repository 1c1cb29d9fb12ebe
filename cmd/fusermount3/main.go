package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/fusermount-shim/pkg/config"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/helper"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/observability"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/security"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/utils"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one invocation and returns the exit code. opts are applied
// after the kernel-backed defaults.
func run(args []string, opts ...helper.Option) int {
	// argv belongs to the fusermount3 command line, so klog is configured
	// on a private flag set instead of flag.CommandLine
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	defer klog.Flush()

	req, parseErr := helper.ParseArgs(args)

	// Every configured setting serves mount mode only, so a bad environment
	// must not keep an unmount from reaching umount2(2) or hide a usage error
	cfg, err := config.Load()
	if err != nil {
		if parseErr == nil && req.Mode == helper.ModeMount {
			utils.LogFatal(err)
			return utils.ExitCode(err)
		}
		klog.Warningf("Ignoring configuration outside mount mode: %v", err)
		cfg = config.Default()
	}
	if err := klogFlags.Set("v", strconv.Itoa(cfg.Verbosity)); err != nil {
		klog.Warningf("Failed to set verbosity %d: %v", cfg.Verbosity, err)
	}

	audit := security.NewLogger(cfg.Audit)
	klog.V(4).Infof("Invocation %s: args=%q", audit.InvocationID(), args)

	if parseErr != nil {
		fmt.Fprintln(os.Stderr, helper.Usage)
		audit.LogRejected(security.EventUsageError, parseErr)
		utils.LogFatal(parseErr)
		return utils.ExitCode(parseErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	h := helper.NewHelper(cfg, append([]helper.Option{
		helper.WithMetrics(metrics),
		helper.WithAuditLogger(audit),
	}, opts...)...)

	err = h.Run(ctx, req)
	if err != nil {
		utils.LogFatal(err)
	}

	if summary, serr := metrics.Summary(); serr == nil {
		klog.V(4).Infof("Invocation %s metrics: %s", audit.InvocationID(), summary)
	}
	if cfg.MetricsFile != "" {
		if werr := metrics.WriteTextfile(cfg.MetricsFile); werr != nil {
			klog.Warningf("%v", werr)
		}
	}
	return utils.ExitCode(err)
}
