// Package breaker implements the sliding-window liquidity tracker: a
// per-identifier state machine that records signed flow deltas into
// tick-coarsened buckets, lazily evicts buckets older than the window, and
// answers a threshold-breach query in O(1) from aggregate counters.
package breaker

import "sync"

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

// tickBucket holds the summed delta for one coarsened timestamp. next is the
// key of the next-in-time bucket, 0 when this bucket is the tail.
type tickBucket struct {
	delta int64
	next  int64
}

// limiter is the per-identifier tracker state. The bucket chain is a monotone
// FIFO queue held in a map keyed by coarsened unix-seconds timestamps: buckets
// are appended at the tail and evicted only from the head, never reordered.
//
// listHead and listTail are timestamps, not pointers. A zero head means the
// chain has never held a bucket; after a full eviction both are reset to the
// current time so the age check does not immediately re-trigger a sync.
type limiter struct {
	mu sync.RWMutex

	minRetainedBps      int64
	limitBeginThreshold int64

	// settledTotal is the net aggregate of deltas that have aged out of the
	// window; inWindowTotal is the net aggregate still reachable from
	// listHead to listTail.
	settledTotal  int64
	inWindowTotal int64

	listHead int64
	listTail int64

	overridden bool

	buckets map[int64]*tickBucket
}

// record ingests a signed delta at the given time. now, tick, and window are
// unix seconds. Callers must hold the write lock.
func (l *limiter) record(now, tick, window, amount int64) {
	bucketKey := now / tick * tick
	l.inWindowTotal += amount

	if l.listHead == 0 {
		l.buckets[bucketKey] = &tickBucket{delta: amount}
		l.listHead = bucketKey
		l.listTail = bucketKey
		return
	}

	if now-l.listHead >= window {
		l.evict(now, window, 0)
	}

	// The tail is resolved before the new bucket is inserted. After a full
	// drain the head/tail hold a bare reset timestamp with no backing bucket;
	// inserting first would make a tick-aligned reset find the bucket it just
	// created and link the tail to itself.
	tail, hasTail := l.buckets[l.listTail]

	// Merge into the tail bucket when another delta already landed in this
	// tick, so bursty activity within one tick does not grow the chain.
	if hasTail && l.listTail == bucketKey {
		tail.delta += amount
		return
	}

	l.buckets[bucketKey] = &tickBucket{delta: amount}
	if hasTail {
		tail.next = bucketKey
	} else {
		// Bare reset timestamp; this bucket starts a fresh chain.
		l.listHead = bucketKey
	}
	l.listTail = bucketKey
}

// evict advances the head past buckets older than the window, folding their
// deltas into settledTotal and removing them from inWindowTotal. At most
// maxIterations buckets are evicted per call; 0 means unbounded. Returns the
// number of buckets evicted. Callers must hold the write lock.
//
// Exhausting the iteration budget leaves a valid-but-stale chain; a follow-up
// call finishes the job. That is a backpressure valve, not an error.
func (l *limiter) evict(now, window int64, maxIterations int) int {
	var evicted int64
	n := 0

	head := l.listHead
	for head != 0 {
		if maxIterations > 0 && n >= maxIterations {
			break
		}
		b, ok := l.buckets[head]
		if !ok {
			// head is a bare reset timestamp; nothing to evict.
			break
		}
		if now-head < window {
			break
		}
		evicted += b.delta
		next := b.next
		delete(l.buckets, head)
		head = next
		n++
	}

	if len(l.buckets) == 0 {
		l.listHead = now
		l.listTail = now
	} else if head != 0 {
		l.listHead = head
	}

	l.settledTotal += evicted
	l.inWindowTotal -= evicted
	return n
}
