// gluon reconciles a proposed block against the transaction pool of a peer.
package main

import (
	"fmt"
	"os"

	"github.com/spacemeshos/gluon/cmd"
)

var (
	version string
	commit  string
	branch  string
)

func main() {
	cmd.Version = version
	cmd.Commit = commit
	cmd.Branch = branch
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
