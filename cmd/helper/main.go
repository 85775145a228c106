// Package main is the entry point for the xrdp GFX helper process: the
// GPU-assisted screen-update pipeline that sits between the display server
// and the RDP server (spec §1-§2).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/neutrinolabs/xrdp-gfxhelper/internal/config"
	"github.com/neutrinolabs/xrdp-gfxhelper/internal/gpu"
	"github.com/neutrinolabs/xrdp-gfxhelper/internal/ipc"
	"github.com/neutrinolabs/xrdp-gfxhelper/internal/logging"
)

var (
	appName    = "xrdp-gfxhelper"
	appVersion = "dev" // injected at build time via -ldflags
)

func main() {
	daemon, action := parseFlags()
	if action != "" {
		return
	}
	if err := run(daemon); err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}
}

// parseFlags mirrors the original helper's single required flag: -d
// requests daemon mode. Anything else prints a short usage line and exits
// 0, matching "need to pass -d" (spec §6).
func parseFlags() (daemon bool, action string) {
	return parseFlagsWithArgs(os.Args[1:])
}

func parseFlagsWithArgs(args []string) (bool, string) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	d := fs.Bool("d", false, "run as a daemon")
	if err := fs.Parse(args); err != nil {
		return false, "usage"
	}
	if !*d {
		showUsage()
		return false, "usage"
	}
	return true, ""
}

func showUsage() {
	fmt.Printf("%s %s: usage: %s -d\n", appName, appVersion, appName)
}

func run(daemon bool) error {
	cfg, err := config.LoadWithOverrides(config.LoadOptions{Daemon: daemon})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.SetLevelFromString(cfg.Logging.Level)

	mgr, err := gpu.NewManager(cfg.GPU.Display, cfg.GPU.DRMDevice)
	if err != nil {
		return fmt.Errorf("init gpu backend: %w", err)
	}
	defer mgr.DeleteAllMonitors()

	display := ipc.NewPeerLink(ipc.RoleDisplay, cfg.Helper.DisplayFD, cfg.Helper.MaxFrameBytes)
	rdp := ipc.NewPeerLink(ipc.RoleRDP, cfg.Helper.RDPFD, cfg.Helper.MaxFrameBytes)

	logging.Info("%s %s starting: displayFd=%d rdpFd=%d display=%q",
		appName, appVersion, cfg.Helper.DisplayFD, cfg.Helper.RDPFD, cfg.GPU.Display)

	dispatcher := ipc.NewDispatcher(display, rdp, mgr)
	return dispatcher.Run(nil)
}
