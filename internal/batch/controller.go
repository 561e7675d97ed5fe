// Package batch drives an ordered set of local image files through the
// scan/publish pipeline one at a time. The controller is an explicit state
// machine advanced by operator decisions: a successful publish or a skip
// moves to the next file, a failed publish holds the current file so the
// operator can retry.
package batch

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/kartoteka-app/kartotekago/internal/models"
	"github.com/kartoteka-app/kartotekago/internal/publish"
	"github.com/kartoteka-app/kartotekago/internal/scanner"
	"github.com/kartoteka-app/kartotekago/internal/store"
)

// Status is the controller's lifecycle state
type Status string

const (
	StatusIdle     Status = "idle"     // created, nothing resolved yet
	StatusAwaiting Status = "awaiting" // current file resolved, waiting for a decision
	StatusDone     Status = "done"     // all files processed
)

// Event is pushed to subscribers on every state change
type Event struct {
	Type      string `json:"type"` // resolved, published, failed, skipped, done
	Index     int    `json:"index"`
	File      string `json:"file"`
	ScanID    string `json:"scan_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Published int    `json:"published"`
	Skipped   int    `json:"skipped"`
	Total     int    `json:"total"`
}

// Summary is the terminal report after the last file
type Summary struct {
	Total     int `json:"total"`
	Published int `json:"published"`
	Skipped   int `json:"skipped"`
}

// Controller processes files strictly sequentially; at most one file is
// in flight because downstream review is sequential and the recognition
// providers are rate-limited externally.
type Controller struct {
	mu       sync.Mutex
	files    []string
	current  int
	status   Status
	session  *models.ScanSession
	scan     *models.ScanRecord
	store    store.Store
	resolver *scanner.Resolver
	pipeline *publish.Pipeline
	dryRun   bool

	published int
	skipped   int

	subs []chan Event

	// ReadFile is swappable for tests; defaults to os.ReadFile
	ReadFile func(string) ([]byte, error)
}

// New creates a controller over an ordered file list.
func New(session *models.ScanSession, files []string, st store.Store, resolver *scanner.Resolver, pipeline *publish.Pipeline, dryRun bool) *Controller {
	status := StatusIdle
	if len(files) == 0 {
		status = StatusDone
	}
	return &Controller{
		files:    files,
		status:   status,
		session:  session,
		store:    st,
		resolver: resolver,
		pipeline: pipeline,
		dryRun:   dryRun,
		ReadFile: os.ReadFile,
	}
}

// Subscribe returns a channel receiving controller events. The cancel
// function must be called when the consumer goes away.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Event, 16)
	c.subs = append(c.subs, ch)
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.subs {
			if sub == ch {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

// emit requires c.mu held; slow subscribers drop events rather than stall the batch
func (c *Controller) emit(ev Event) {
	ev.Published = c.published
	ev.Skipped = c.skipped
	ev.Total = len(c.files)
	for _, sub := range c.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

// State reports the current position and status.
func (c *Controller) State() (index int, file string, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	file = ""
	if c.current < len(c.files) {
		file = c.files[c.current]
	}
	return c.current, file, c.status
}

// CurrentScan returns the resolved record awaiting a decision, if any.
func (c *Controller) CurrentScan() *models.ScanRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scan
}

// ResolveCurrent resolves the file at the current index and suspends the
// batch awaiting a decision. Calling it again while awaiting re-resolves
// the same file (candidates are replaced wholesale).
func (c *Controller) ResolveCurrent(ctx context.Context) (*models.ScanRecord, error) {
	c.mu.Lock()
	if c.status == StatusDone {
		c.mu.Unlock()
		return nil, fmt.Errorf("batch complete: %w", models.ErrInvalidState)
	}
	idx := c.current
	file := c.files[idx]
	c.mu.Unlock()

	data, err := c.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", file, err)
	}

	scan, err := c.resolver.Resolve(ctx, data, file, c.session.ID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.scan = scan
	c.status = StatusAwaiting
	c.emit(Event{Type: "resolved", Index: idx, File: file, ScanID: scan.ID})
	c.mu.Unlock()
	return scan, nil
}

// ConfirmCurrent publishes the current scan with the chosen candidate.
// Success advances to the next file; failure keeps the same file current.
func (c *Controller) ConfirmCurrent(ctx context.Context, candidateID string) (*publish.Result, error) {
	c.mu.Lock()
	if c.status != StatusAwaiting || c.scan == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("no scan awaiting decision: %w", models.ErrInvalidState)
	}
	scan := c.scan
	idx := c.current
	file := c.files[idx]
	c.mu.Unlock()

	data, err := c.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", file, err)
	}

	result, err := c.pipeline.Publish(ctx, scan.ID, candidateID, publish.Images{Primary: data}, c.dryRun)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.emit(Event{Type: "failed", Index: idx, File: file, ScanID: scan.ID, Error: err.Error()})
		return result, err
	}
	c.published++
	c.emit(Event{Type: "published", Index: idx, File: file, ScanID: scan.ID})
	c.advanceLocked()
	return result, nil
}

// SkipCurrent marks the current scan skipped and advances.
func (c *Controller) SkipCurrent(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusAwaiting || c.scan == nil {
		c.mu.Unlock()
		return fmt.Errorf("no scan awaiting decision: %w", models.ErrInvalidState)
	}
	scan := c.scan
	idx := c.current
	file := c.files[idx]
	c.mu.Unlock()

	if err := c.store.MarkSkipped(ctx, scan.ID); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped++
	c.emit(Event{Type: "skipped", Index: idx, File: file, ScanID: scan.ID})
	c.advanceLocked()
	return nil
}

// advanceLocked moves to the next file or finishes the batch. Requires c.mu.
func (c *Controller) advanceLocked() {
	c.scan = nil
	c.current++
	if c.current >= len(c.files) {
		c.status = StatusDone
		c.emit(Event{Type: "done", Index: c.current})
		return
	}
	c.status = StatusIdle
}

// Summary reports the terminal counts. Valid at any time; authoritative
// once status is done.
func (c *Controller) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Summary{Total: len(c.files), Published: c.published, Skipped: c.skipped}
}
