package rangepull

import (
	"context"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// reportInterval is the sampling period for the progress reporter: it
// samples status() every 5s and renders a terminal readout.
const reportInterval = 5 * time.Second

// runReporter periodically renders Ledger.Status() to out until ctx is
// cancelled. It has no effect on download correctness; the coordinator
// omits it entirely under --quiet.
func runReporter(ctx context.Context, ledger *Ledger, out io.Writer) {
	_, total := ledger.Status()
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("downloading"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		downloaded, _ := ledger.Status()
		_ = bar.Set64(downloaded)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
