package rangepull

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/cognusion/go-sequence"
	"github.com/cognusion/go-timings"
)

// Default knobs matching the CLI's flag defaults.
const (
	DefaultWorkers   = 5
	DefaultChunkSize = 5 * 1024 * 1024 // 5 MiB

	// sanityCeiling guards against accidentally targeting an effectively
	// infinite stream.
	sanityCeiling = 20000 * 1024 * 1024 // 20000 MiB
)

var seq = sequence.New(0)

// Coordinator drives one download end to end: HEAD for size, ledger
// load-or-create, file open/truncate, worker pool spawn, and
// finalization (side-car deletion on success, flush on failure).
type Coordinator struct {
	// URL is the source resource. Required.
	URL string
	// OutputPath overrides the derived output file path. Optional.
	OutputPath string
	// Workers is the worker count. Defaults to DefaultWorkers.
	Workers int
	// ChunkSize is the chunk size in bytes. Defaults to DefaultChunkSize.
	ChunkSize int64
	// Client is used for the HEAD and every ranged GET. Defaults to DefaultClient.
	Client Client
	// Quiet disables the progress reporter.
	Quiet bool

	DebugOut   *log.Logger
	TimingsOut *log.Logger
}

// Run executes the download. ctx cancellation (e.g. an interrupt signal
// wired in by the caller) is treated as Interrupted: in-flight fetches
// are abandoned, and the ledger is flushed to the side-car before Run
// returns.
func (c *Coordinator) Run(ctx context.Context) error {
	debugOut, timingsOut := c.loggers()
	dlid := seq.NextHashID()
	defer timings.Track(fmt.Sprintf("[%s] download", dlid), time.Now(), timingsOut)

	outfile, err := c.outputPath()
	if err != nil {
		return err
	}
	statusfile := outfile + ".download"

	outExists := exists(outfile)
	statusExists := exists(statusfile)

	switch {
	case outExists && !statusExists:
		debugOut.Printf("[%s] %s already downloaded\n", dlid, outfile)
		return nil
	case !outExists && statusExists:
		return newError(OrphanLedger, statusfile, nil)
	}

	client := c.Client
	if client == nil {
		client = DefaultClient
	}

	size, err := headSize(ctx, client, c.URL, timingsOut)
	if err != nil {
		return err
	}
	if size >= sanityCeiling {
		return newError(SizeSuspicious, fmt.Sprintf("%d bytes", size), nil)
	}

	chunkSize := c.ChunkSize
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}

	ledger, err := loadOrCreateLedger(statusfile, size, chunkSize)
	if err != nil {
		return err
	}
	if ledger.ChunkSize() != chunkSize {
		debugOut.Printf("[%s] chunk size %d => %d\n", dlid, ledger.ChunkSize(), chunkSize)
		ledger.Rechunkize(chunkSize)
	}
	ledger.SetURL(c.URL)

	var runErr error
	defer func() {
		if runErr != nil {
			if ferr := ledger.Save(statusfile); ferr != nil {
				debugOut.Printf("[%s] failed to flush ledger after error: %v\n", dlid, ferr)
			}
		}
	}()

	out, err := openTruncated(outfile, size)
	if err != nil {
		runErr = err
		return err
	}
	defer out.Close()

	outstanding := ledger.Outstanding()
	debugOut.Printf("[%s] %d chunk(s) outstanding of %d bytes total\n", dlid, len(outstanding), size)

	fetcher := NewFetcher(client, debugOut, timingsOut)
	pool := NewPool(fetcher, out, ledger, c.workers(), debugOut)

	reportCtx, stopReport := context.WithCancel(ctx)
	if !c.Quiet {
		go runReporter(reportCtx, ledger, os.Stdout)
	}

	runErr = pool.Run(ctx, c.URL, outstanding)
	stopReport()

	if runErr != nil {
		return runErr
	}

	if rerr := os.Remove(statusfile); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		return rerr
	}
	return nil
}

func (c *Coordinator) workers() int {
	if c.Workers < 1 {
		return DefaultWorkers
	}
	return c.Workers
}

func (c *Coordinator) loggers() (*log.Logger, *log.Logger) {
	debugOut := c.DebugOut
	if debugOut == nil {
		debugOut = log.New(io.Discard, "", 0)
	}
	timingsOut := c.TimingsOut
	if timingsOut == nil {
		timingsOut = log.New(io.Discard, "", 0)
	}
	return debugOut, timingsOut
}

// outputPath derives outfile from OutputPath if set, else the basename
// of the URL's path.
func (c *Coordinator) outputPath() (string, error) {
	if c.OutputPath != "" {
		return c.OutputPath, nil
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return "", fmt.Errorf("cannot derive an output filename from %q", c.URL)
	}
	return base, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// headSize issues a HEAD and returns the numeric Content-Length.
func headSize(ctx context.Context, client Client, rawURL string, timingsOut *log.Logger) (int64, error) {
	defer timings.Track("head", time.Now(), timingsOut)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, newError(NoContentLength, "building HEAD request", err)
	}
	res, err := client.Do(req)
	if err != nil {
		return 0, newError(NoContentLength, "performing HEAD request", err)
	}
	defer res.Body.Close()

	cl := res.Header.Get("Content-Length")
	if cl == "" {
		return 0, newError(NoContentLength, "missing Content-Length", nil)
	}
	size, err := strconv.ParseInt(cl, 10, 64)
	if err != nil {
		return 0, newError(NoContentLength, fmt.Sprintf("non-numeric Content-Length %q", cl), err)
	}
	return size, nil
}

// loadOrCreateLedger loads the side-car at statusfile, treating its
// absence as "start fresh", and enforces the resume-safety contract: the
// loaded total_size must match the freshly HEAD'd size.
func loadOrCreateLedger(statusfile string, size, chunkSize int64) (*Ledger, error) {
	ledger, err := LoadLedger(statusfile)
	if err == nil {
		if ledger.TotalSize() != size {
			return nil, newError(SizeMismatch,
				fmt.Sprintf("ledger has %d, resource has %d", ledger.TotalSize(), size), nil)
		}
		return ledger, nil
	}

	var rpErr *Error
	if errors.As(err, &rpErr) && rpErr.Kind == LedgerAbsent {
		return NewLedger(size, chunkSize), nil
	}
	return nil, err
}

// openTruncated opens path for read-write, creating it if absent, and
// extends (or shrinks) it to exactly size bytes.
func openTruncated(path string, size int64) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
