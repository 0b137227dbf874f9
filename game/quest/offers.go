package quest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/kasuganosora/rpgquest/cache"
	"go.uber.org/zap"
)

// OfferKind is what a pending prompt asks the player to confirm.
type OfferKind string

const (
	OfferGive  OfferKind = "give"
	OfferAbort OfferKind = "abort"
)

// Offers remembers the accept/decline prompts a player may still answer.
// Entries live in the hash offers:{charID} and expire together after ttl.
// Writes for one character land in the order they were made.
type Offers struct {
	c      cache.Cache
	ttl    time.Duration
	logger *zap.Logger
	wg     sync.WaitGroup

	mu   sync.Mutex
	tail map[int64]chan struct{} // closed when the character's newest write lands
}

func NewOffers(c cache.Cache, ttl time.Duration, logger *zap.Logger) *Offers {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Offers{c: c, ttl: ttl, logger: logger, tail: make(map[int64]chan struct{})}
}

func offerKey(charID int64) string { return fmt.Sprintf("offers:%d", charID) }

// Remember records the offer in the background; the dispatch goroutine does
// not wait on the cache. Each write waits for the previous one of the same
// character.
func (o *Offers) Remember(charID int64, id QuestID, kind OfferKind) {
	done := make(chan struct{})
	o.mu.Lock()
	prev := o.tail[charID]
	o.tail[charID] = done
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.landed(charID, done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		key := offerKey(charID)
		err := o.c.HSet(ctx, key, strconv.Itoa(int(id)), string(kind))
		if err == nil {
			err = o.c.Expire(ctx, key, o.ttl)
		}
		if err != nil {
			o.logger.Warn("remember quest offer failed",
				zap.Int64("char_id", charID), zap.Int("quest_id", int(id)), zap.Error(err))
		}
	}()
}

func (o *Offers) landed(charID int64, done chan struct{}) {
	close(done)
	o.mu.Lock()
	if o.tail[charID] == done {
		delete(o.tail, charID)
	}
	o.mu.Unlock()
}

// settle waits for the character's offer writes still in flight.
func (o *Offers) settle(ctx context.Context, charID int64) error {
	o.mu.Lock()
	last := o.tail[charID]
	o.mu.Unlock()
	if last == nil {
		return nil
	}
	select {
	case <-last:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume removes the pending offer and returns its kind. ok is false when
// no offer was pending, so each prompt can be answered once. A reply racing
// the offer's own write waits for it.
func (o *Offers) Consume(ctx context.Context, charID int64, id QuestID) (OfferKind, bool, error) {
	if err := o.settle(ctx, charID); err != nil {
		return "", false, err
	}
	key, field := offerKey(charID), strconv.Itoa(int(id))
	v, err := o.c.HGet(ctx, key, field)
	if cache.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	n, err := o.c.HDel(ctx, key, field)
	if err != nil {
		return "", false, err
	}
	if n == 0 {
		return "", false, nil
	}
	return OfferKind(v), true, nil
}

// Flush waits for background writes started by Remember.
func (o *Offers) Flush() { o.wg.Wait() }
