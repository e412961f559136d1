// Command rangepull is a thin CLI front end over the rangepull library:
// flag parsing, logger wiring, and process exit codes. It carries no
// download logic of its own.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/cognusion/go-rangepull"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		output    string
		workers   int
		chunkMegs int
		debug     bool
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "rangepull <url>",
		Short: "Parallel, resumable HTTP range downloader",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var debugOut *log.Logger
			if debug {
				debugOut = log.New(os.Stderr, "[DEBUG] ", log.LstdFlags)
			}

			coordinator := &rangepull.Coordinator{
				URL:        args[0],
				OutputPath: output,
				Workers:    workers,
				ChunkSize:  int64(chunkMegs) * 1024 * 1024,
				Quiet:      quiet,
				DebugOut:   debugOut,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			return coordinator.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path (default: basename of the URL)")
	cmd.Flags().IntVarP(&workers, "workers", "w", rangepull.DefaultWorkers, "worker count")
	cmd.Flags().IntVarP(&chunkMegs, "chunksize", "c", rangepull.DefaultChunkSize/(1024*1024), "chunk size in megabytes")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "verbose logging")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "disable the progress reporter")

	cmd.SilenceUsage = true

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rangepull:", err)
		return 1
	}
	return 0
}
