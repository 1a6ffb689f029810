package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/HerbHall/ipscope/internal/backup"
	"github.com/HerbHall/ipscope/internal/config"
)

func runBackup(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	output := fs.String("output", "", "output file path (default: ipscope-backup-{timestamp}.tar.gz)")
	configFile := fs.String("config", "", "configuration file; also included in the backup")
	if err := fs.Parse(args); err != nil {
		return err
	}

	v, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *output == "" {
		*output = fmt.Sprintf("ipscope-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
	}

	m, err := backup.Backup(context.Background(), v.GetString("database.path"), v.ConfigFileUsed(), *output)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Backup created: %s (database %s)\n", *output, m.Database)
	return nil
}

func runRestore(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	input := fs.String("input", "", "backup archive to restore (required)")
	configFile := fs.String("config", "", "configuration file naming the database location")
	dataDir := fs.String("data-dir", "", "target directory (default: directory of database.path)")
	force := fs.Bool("force", false, "overwrite existing files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return fmt.Errorf("-input is required")
	}

	if *dataDir == "" {
		v, err := config.Load(*configFile)
		if err != nil {
			return err
		}
		*dataDir = filepath.Dir(v.GetString("database.path"))
	}

	m, err := backup.Restore(context.Background(), *input, *dataDir, *force)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Restore complete: %s (created %s, version %s) restored to %s\n",
		m.Database, m.CreatedAt.Format(time.RFC3339), m.Version, *dataDir)
	return nil
}
