// Package aggregator coalesces album updates sharing a media_group_id into a
// single finalized group before trigger classification.
package aggregator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
)

// FinalizedGroup is the resolved album handed to the dispatcher: updates in
// message_id order, the first non-empty caption, and the largest rendition of
// each photo.
type FinalizedGroup struct {
	MediaGroupID   string
	Updates        []*models.Update
	PhotoFileIDs   []string
	PhotoFileSizes []int64
	Caption        string

	// Truncated is set when the album exceeded the photo cap and the excess
	// was dropped. The dispatcher sends a user-facing notice.
	Truncated bool
}

// EmitFunc receives each finalized group. Called from the waiter goroutine.
type EmitFunc func(ctx context.Context, group *FinalizedGroup)

// bufferedUpdate pairs an update with its arrival order for tie-breaking.
type bufferedUpdate struct {
	update  *models.Update
	arrival int
}

// buffer is one open media group.
type buffer struct {
	firstSeen     time.Time
	lastArrival   time.Time
	updates       []bufferedUpdate
	expectedCount int
	nextArrival   int
}

// Aggregator buffers album updates and finalizes them when the group settles.
// A group finalizes when its cardinality matches a hinted expected count, or
// when the collection window has elapsed with no recent arrivals. Groups that
// never settle are evicted as malformed.
type Aggregator struct {
	window   time.Duration
	quiet    time.Duration
	eviction time.Duration
	maxSize  int
	emit     EmitFunc
	logger   *slog.Logger

	mu      sync.Mutex
	buffers map[string]*buffer
	wg      sync.WaitGroup
	closed  bool
}

// New creates an aggregator that calls emit for each finalized group.
func New(cfg *config.InlineConfig, emit EmitFunc) *Aggregator {
	return &Aggregator{
		window:   cfg.MediaGroupWindow,
		quiet:    cfg.MediaGroupQuiet,
		eviction: cfg.MediaGroupEviction,
		maxSize:  5,
		emit:     emit,
		logger:   slog.Default().With("component", "media-group-aggregator"),
		buffers:  make(map[string]*buffer),
	}
}

// Add buffers an album update. It reports false when the update carries no
// media_group_id and should flow through the normal single-message path.
func (a *Aggregator) Add(ctx context.Context, update *models.Update) bool {
	if update == nil || update.Message == nil || update.Message.MediaGroupID == "" {
		return false
	}
	groupID := update.Message.MediaGroupID

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}

	buf, ok := a.buffers[groupID]
	if !ok {
		now := time.Now()
		buf = &buffer{firstSeen: now, lastArrival: now}
		a.buffers[groupID] = buf
		a.wg.Add(1)
		go a.wait(ctx, groupID)
	} else {
		buf.lastArrival = time.Now()
	}

	buf.updates = append(buf.updates, bufferedUpdate{update: update, arrival: buf.nextArrival})
	buf.nextArrival++
	return true
}

// SetExpectedCount hints the album size so the group can finalize as soon as
// every sibling has arrived.
func (a *Aggregator) SetExpectedCount(groupID string, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if buf, ok := a.buffers[groupID]; ok {
		buf.expectedCount = n
	}
}

// Close evicts all open buffers and waits for the waiters to exit. Buffered
// groups are dropped, not finalized.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closed = true
	for id := range a.buffers {
		delete(a.buffers, id)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

// wait polls the buffer until it settles or exceeds the eviction deadline.
func (a *Aggregator) wait(ctx context.Context, groupID string) {
	defer a.wg.Done()

	tick := a.quiet / 2
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.take(groupID)
			return
		case <-ticker.C:
		}

		now := time.Now()

		a.mu.Lock()
		buf, ok := a.buffers[groupID]
		if !ok {
			a.mu.Unlock()
			return
		}

		if now.Sub(buf.firstSeen) >= a.eviction {
			delete(a.buffers, groupID)
			a.mu.Unlock()
			a.logger.Warn("Media group never settled, evicting",
				"media_group_id", groupID, "buffered", len(buf.updates))
			return
		}

		settled := buf.expectedCount > 0 && len(buf.updates) >= buf.expectedCount
		if !settled {
			settled = now.Sub(buf.firstSeen) >= a.window && now.Sub(buf.lastArrival) >= a.quiet
		}
		if !settled {
			a.mu.Unlock()
			continue
		}

		delete(a.buffers, groupID)
		a.mu.Unlock()

		if group := a.finalize(groupID, buf); group != nil {
			a.emit(ctx, group)
		}
		return
	}
}

// take removes a buffer without finalizing (shutdown path).
func (a *Aggregator) take(groupID string) {
	a.mu.Lock()
	delete(a.buffers, groupID)
	a.mu.Unlock()
}

// finalize orders the buffered updates and extracts photos and caption.
// A group that collected no photos yields nil.
func (a *Aggregator) finalize(groupID string, buf *buffer) *FinalizedGroup {
	sort.SliceStable(buf.updates, func(i, j int) bool {
		mi, mj := buf.updates[i].update.Message, buf.updates[j].update.Message
		if mi.MessageID != mj.MessageID {
			return mi.MessageID < mj.MessageID
		}
		return buf.updates[i].arrival < buf.updates[j].arrival
	})

	group := &FinalizedGroup{MediaGroupID: groupID}
	for _, bu := range buf.updates {
		msg := bu.update.Message
		if group.Caption == "" && msg.Caption != "" {
			group.Caption = msg.Caption
		}
		if fileID := msg.LargestPhoto(); fileID != "" {
			if len(group.PhotoFileIDs) >= a.maxSize {
				group.Truncated = true
				continue
			}
			group.PhotoFileIDs = append(group.PhotoFileIDs, fileID)
			group.PhotoFileSizes = append(group.PhotoFileSizes, msg.LargestPhotoSize())
			group.Updates = append(group.Updates, bu.update)
		}
	}

	if len(group.PhotoFileIDs) == 0 {
		return nil
	}
	return group
}

// Open returns the number of currently open buffers (health reporting).
func (a *Aggregator) Open() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers)
}
