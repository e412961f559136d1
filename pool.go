package rangepull

import (
	"context"
	"io"
	"log"
	"os"
	"sync"

	"github.com/cognusion/semaphore"
	"go.uber.org/atomic"
)

// Pool is the shared worker-pool state: the output file, the single
// write mutex guarding seek+write, the ledger workers append completed
// ranges to, and the fatal-error latch.
type Pool struct {
	fetcher    *Fetcher
	out        *os.File
	writeMu    sync.Mutex
	ledger     *Ledger
	numWorkers int
	debugOut   *log.Logger

	firstErr atomic.Error
}

// NewPool returns a Pool of numWorkers fetchers writing into out and
// recording completion in ledger.
func NewPool(fetcher *Fetcher, out *os.File, ledger *Ledger, numWorkers int, debugOut *log.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if debugOut == nil {
		debugOut = log.New(io.Discard, "", 0)
	}
	return &Pool{
		fetcher:    fetcher,
		out:        out,
		ledger:     ledger,
		numWorkers: numWorkers,
		debugOut:   debugOut,
	}
}

// Run fetches every range in queue against url, concurrently across
// min(numWorkers, len(queue)) workers, and blocks until all have
// finished (cleanly or because one hit a fatal error). It returns the
// fatal error latched by the workers, if any; when several workers fail,
// each stores its error and the last store wins, so it is not necessarily
// the first error encountered.
func (p *Pool) Run(ctx context.Context, url string, queue []Range) error {
	if len(queue) == 0 {
		return nil
	}

	work := make(chan Range, len(queue))
	for _, r := range queue {
		work <- r
	}
	close(work)

	workers := p.numWorkers
	if workers > len(queue) {
		workers = len(queue)
	}
	sem := semaphore.NewSemaphore(workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		sem.Lock()
		wg.Add(1)
		go p.worker(ctx, url, work, sem, &wg)
	}
	wg.Wait()

	if err := p.firstErr.Load(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return newError(Interrupted, "download cancelled", ctx.Err())
	}
	return nil
}

// worker is IDLE -> FETCHING -> WRITING -> RECORDED -> IDLE, draining
// work until the channel is empty (DONE) or a fatal error is hit
// (TERMINATED). A Transient failure is handled entirely inside
// Fetcher.Fetch's own backoff loop, so from the worker's perspective a
// chunk either eventually succeeds or fails fatally.
func (p *Pool) worker(ctx context.Context, url string, work <-chan Range, sem semaphore.Semaphore, wg *sync.WaitGroup) {
	defer wg.Done()
	defer sem.Unlock()

	for r := range work {
		if p.firstErr.Load() != nil || ctx.Err() != nil {
			return
		}

		body, err := p.fetcher.Fetch(ctx, url, r)
		if err != nil {
			p.firstErr.Store(err)
			return
		}

		p.writeMu.Lock()
		_, werr := p.out.WriteAt(body, r.Lo)
		p.writeMu.Unlock()
		if werr != nil {
			p.firstErr.Store(newError(Transient, "writing chunk", werr))
			return
		}

		p.ledger.Record(r)
		p.debugOut.Printf("completed %d-%d\n", r.Lo, r.Hi)
	}
}
