package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"

	"github.com/migmoog/distsys-prj3/internal/hostlist"
)

// printBanner announces this process's role and id on startup, colored
// so it stands out among the rest of stderr's traffic - LEADER in green,
// FOLLOWER in cyan, matching the pack's convention for colorized CLI
// banners on a Windows-safe writer.
func printBanner(hl *hostlist.HostList) {
	out := colorable.NewColorableStderr()

	role := color.New(color.FgCyan, color.Bold).SprintFunc()("FOLLOWER")
	if hl.IsLeader() {
		role = color.New(color.FgGreen, color.Bold).SprintFunc()("LEADER")
	}

	fmt.Fprintf(out, "member %s started as %s (peer %d of %d, host %q)\n",
		color.New(color.Faint).Sprint("distsys-prj3"), role, hl.Self(), hl.Count(), hl.Hostname())
}
