// Command ipscope runs the address inventory server and offers offline
// subnet calculation and sweep subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/HerbHall/ipscope/internal/version"
)

const usage = `usage: ipscope [command] [flags]

commands:
  serve     run the HTTP server (default)
  calc      print subnet metadata for a CIDR
  scan      sweep a CIDR and print reachable hosts
  backup    archive the database and configuration
  restore   restore a backup archive
  version   print version information

Run "ipscope <command> -h" for command flags.
`

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "calc":
		err = runCalc(args, os.Stdout)
	case "scan":
		err = runScan(args, os.Stdout)
	case "backup":
		err = runBackup(args, os.Stdout)
	case "restore":
		err = runRestore(args, os.Stdout)
	case "version":
		fmt.Println(version.Info())
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ipscope %s: %v\n", cmd, err)
		os.Exit(1)
	}
}
