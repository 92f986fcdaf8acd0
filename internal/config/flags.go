package config

import (
	"flag"
	"os"
	"time"

	"github.com/jbcrane13/jubileesync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string   sqlite database path
//	-b string   remote bucket name
//	-i int      auto-sync interval in seconds
//	-s string   conflict resolution strategy
//
// Arguments are filtered with flagx.FilterArgs so flags owned by other
// components do not interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-b", "-i", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "sqlite database path")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "remote bucket name")
	interval := fs.Int("i", int(cfg.AutoSyncInterval.Seconds()), "auto-sync interval (in seconds)")
	fs.StringVar(&cfg.Strategy, "s", cfg.Strategy, "conflict resolution strategy")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.AutoSyncInterval = time.Duration(*interval) * time.Second
}
