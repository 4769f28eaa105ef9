package mongodb

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"mws-server/internal/mws/domain/model"
	"mws-server/internal/mws/domain/repository"
	apperrors "mws-server/internal/shared/errors"
	"mws-server/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
)

// pagedCursor is one live server-side cursor plus its paging state. The
// total count is captured once at open time and trusted on every resume;
// the owning tenant is recorded so no other tenant can resume the id.
type pagedCursor struct {
	resID     string
	cur       repository.QueryCursor
	total     int64
	retrieved int64
	deadline  time.Time
}

// CursorPager hands out opaque cursor ids for open query cursors so a
// client can drain a query in batches across stateless requests. Cursors
// are killed eagerly on exhaustion and reaped by a janitor when idle past
// the configured timeout. A cursor id must not be resumed concurrently.
type CursorPager struct {
	mu      sync.Mutex
	cursors map[int64]*pagedCursor

	timeout time.Duration
	log     logger.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewCursorPager creates a pager and starts its expiry janitor.
func NewCursorPager(timeout time.Duration, log logger.Logger) *CursorPager {
	p := &CursorPager{
		cursors: make(map[int64]*pagedCursor),
		timeout: timeout,
		log:     log.WithComponent("cursor_pager"),
		done:    make(chan struct{}),
	}
	go p.janitor()
	return p
}

// Open registers a newly executed cursor for the tenant and reads its first
// batch. A non-positive batch size drains the whole result set in one round
// trip. The returned cursor id is zero when the query was fully drained.
func (p *CursorPager) Open(ctx context.Context, resID string, cur repository.QueryCursor, total, batchSize int64) (*model.FindResult, error) {
	pc := &pagedCursor{resID: resID, cur: cur, total: total}

	batch, exhausted, err := p.readBatch(ctx, pc, batchSize)
	if err != nil {
		cur.Close(ctx)
		return nil, err
	}
	pc.retrieved = int64(len(batch))

	if exhausted || pc.retrieved >= total {
		// Proactive kill: store cursors are scarce and carry their own idle
		// timeout, waiting it out wastes a slot.
		cur.Close(ctx)
		return &model.FindResult{Result: batch, Count: total, CursorID: 0}, nil
	}

	id := p.store(pc)
	p.log.WithFields(map[string]interface{}{
		"cursor_id": id,
		"total":     total,
		"batch":     len(batch),
	}).Debug("Opened paged cursor")

	return &model.FindResult{Result: batch, Count: total, CursorID: id}, nil
}

// Resume reads the next batch of a previously opened cursor. Resuming an
// unknown or expired id fails with CursorNotFound; the client restarts the
// query from scratch. A cursor opened by another tenant is reported the
// same way, not as forbidden, so ids leak nothing about live cursors.
func (p *CursorPager) Resume(ctx context.Context, resID string, token model.CursorToken) (*model.FindResult, error) {
	p.mu.Lock()
	pc, ok := p.cursors[token.CursorID]
	if ok && pc.resID != resID {
		pc, ok = nil, false
	}
	if ok {
		pc.deadline = time.Now().Add(p.timeout)
	}
	p.mu.Unlock()
	if !ok {
		return nil, apperrors.NewCursorNotFound(token.CursorID)
	}

	batch, exhausted, err := p.readBatch(ctx, pc, token.BatchSize)
	if err != nil {
		p.kill(ctx, token.CursorID)
		return nil, err
	}
	pc.retrieved += int64(len(batch))

	if exhausted || pc.retrieved >= pc.total {
		p.kill(ctx, token.CursorID)
		return &model.FindResult{Result: batch, Count: pc.total, CursorID: 0}, nil
	}
	return &model.FindResult{Result: batch, Count: pc.total, CursorID: token.CursorID}, nil
}

// Shutdown closes every live cursor and stops the janitor.
func (p *CursorPager) Shutdown(ctx context.Context) {
	p.stopOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, pc := range p.cursors {
		pc.cur.Close(ctx)
		delete(p.cursors, id)
	}
}

// Live returns the number of open paged cursors.
func (p *CursorPager) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cursors)
}

// readBatch reads up to batchSize documents, or everything remaining when
// batchSize is non-positive. The second result reports cursor exhaustion.
func (p *CursorPager) readBatch(ctx context.Context, pc *pagedCursor, batchSize int64) ([]bson.M, bool, error) {
	drain := batchSize <= 0
	batch := []bson.M{}

	for drain || int64(len(batch)) < batchSize {
		if !pc.cur.Next(ctx) {
			if err := pc.cur.Err(); err != nil {
				return nil, false, apperrors.NewStorageError("cursor iteration failed", err)
			}
			return batch, true, nil
		}
		var doc bson.M
		if err := pc.cur.Decode(&doc); err != nil {
			return nil, false, apperrors.NewStorageError("failed to decode document", err)
		}
		batch = append(batch, doc)
	}
	return batch, false, nil
}

func (p *CursorPager) store(pc *pagedCursor) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc.deadline = time.Now().Add(p.timeout)
	for {
		id := rand.Int63()
		if id == 0 {
			continue
		}
		if _, taken := p.cursors[id]; taken {
			continue
		}
		p.cursors[id] = pc
		return id
	}
}

func (p *CursorPager) kill(ctx context.Context, id int64) {
	p.mu.Lock()
	pc, ok := p.cursors[id]
	delete(p.cursors, id)
	p.mu.Unlock()

	if ok {
		pc.cur.Close(ctx)
		p.log.WithFields(map[string]interface{}{"cursor_id": id}).Debug("Killed paged cursor")
	}
}

func (p *CursorPager) janitor() {
	interval := p.timeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case now := <-ticker.C:
			p.reapExpired(now)
		}
	}
}

func (p *CursorPager) reapExpired(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p.mu.Lock()
	var expired []*pagedCursor
	for id, pc := range p.cursors {
		if pc.deadline.Before(now) {
			expired = append(expired, pc)
			delete(p.cursors, id)
		}
	}
	p.mu.Unlock()

	for _, pc := range expired {
		pc.cur.Close(ctx)
	}
	if len(expired) > 0 {
		p.log.WithFields(map[string]interface{}{"count": len(expired)}).Info("Reaped expired cursors")
	}
}
