package contentsync

import (
	"context"
	"sync"
	"time"
)

// Admission is the decision returned by Downloader.Acquire.
type Admission int

const (
	// AdmissionProceed grants the caller the only in-flight fetch for the
	// blob; the caller must call Ticket.Complete when the fetch ends.
	AdmissionProceed Admission = iota

	// AdmissionAlreadyInFlight means another caller owns the fetch; wait on
	// Ticket.Wait for its result instead of starting a duplicate.
	AdmissionAlreadyInFlight
)

// Downloader guarantees at most one in-flight fetch per blob identifier and
// fans the result out to every waiter.
//
// The in-flight set lives in process memory only; it is cleared on restart
// and re-derived from revision comparison on the next sync pass. Fetches for
// distinct blob ids proceed fully in parallel.
type Downloader struct {
	mu       sync.Mutex
	inflight map[string]*fetchState
	timeout  time.Duration
}

type fetchState struct {
	done chan struct{}
	err  error
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithFetchTimeout bounds each fetch; after the timeout the fetch completes
// with a failure result, releasing all waiters.
func WithFetchTimeout(d time.Duration) DownloaderOption {
	return func(dl *Downloader) {
		dl.timeout = d
	}
}

// NewDownloader creates a download coordinator.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	dl := &Downloader{
		inflight: make(map[string]*fetchState),
		timeout:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(dl)
	}
	return dl
}

// Ticket represents one caller's stake in a blob fetch.
type Ticket struct {
	d      *Downloader
	blobID string
	state  *fetchState
	owner  bool
}

// Acquire admits at most one fetch per blob id. The returned ticket is used
// either to complete the fetch (AdmissionProceed) or to await the owner's
// result (AdmissionAlreadyInFlight).
func (d *Downloader) Acquire(blobID string) (*Ticket, Admission) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if st, ok := d.inflight[blobID]; ok {
		return &Ticket{d: d, blobID: blobID, state: st}, AdmissionAlreadyInFlight
	}

	st := &fetchState{done: make(chan struct{})}
	d.inflight[blobID] = st
	return &Ticket{d: d, blobID: blobID, state: st, owner: true}, AdmissionProceed
}

// InFlight reports whether a fetch for the blob id is currently running.
func (d *Downloader) InFlight(blobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[blobID]
	return ok
}

// FetchTimeout returns the per-fetch deadline the coordinator applies.
func (d *Downloader) FetchTimeout() time.Duration {
	return d.timeout
}

// Complete ends the owner's fetch, removes the blob from the in-flight set
// and broadcasts the result to all waiters. Calling Complete on a waiter
// ticket is a no-op.
func (t *Ticket) Complete(err error) {
	if !t.owner {
		return
	}

	t.d.mu.Lock()
	delete(t.d.inflight, t.blobID)
	t.d.mu.Unlock()

	t.state.err = err
	close(t.state.done)
}

// Wait blocks until the owning fetch completes and returns its result, or
// until ctx is done.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.state.done:
		return t.state.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Owner reports whether this ticket holds the in-flight fetch.
func (t *Ticket) Owner() bool { return t.owner }
