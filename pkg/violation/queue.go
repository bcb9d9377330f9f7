package violation

import (
	"sort"

	"github.com/google/uuid"
)

//Never is the sentinel expiry time: far enough out that the tail entry of
//the queue can never come due.
const Never int64 = 1<<32 - 1

type (
	//Entry is one in-flight violation awaiting its expiry action
	Entry struct {
		ID           string            // stable id carried into dumps and debug logs
		VKey         string            // client + "=" + action, the dedup identity
		ExpireAt     int64             // unix seconds the expiry action fires at
		ExpireAction string            // name of the paired expiry action
		Args         map[string]string // merged variable snapshot for templating
	}

	//Queue is the time-ordered violation queue plus its vkey index. The
	//tail always holds a sentinel entry so Front is total.
	Queue struct {
		entries []*Entry
		index   map[string]*Entry
	}
)

// VKey builds the deduplication identity for a client/action pair.
func VKey(client string, actionName string) string {
	return client + "=" + actionName
}

// NewQueue creates a queue holding only the sentinel.
func NewQueue() *Queue {
	return &Queue{
		entries: []*Entry{sentinel()},
		index:   make(map[string]*Entry),
	}
}

func sentinel() *Entry {
	return &Entry{
		VKey:         "",
		ExpireAt:     Never,
		ExpireAction: "quit",
		Args:         map[string]string{},
	}
}

// Enqueue inserts or refreshes the violation identified by vkey. The return
// value reports whether this was a first observation: callers fire the
// violation action only then. A refresh pushes the expiry forward and moves
// the entry to its new queue position without re-firing anything.
func (q *Queue) Enqueue(vkey string, expireAt int64, expireAction string, args map[string]string) (*Entry, bool) {
	entry, known := q.index[vkey]
	if known {
		q.remove(entry)
		entry.ExpireAt = expireAt
		entry.ExpireAction = expireAction
		entry.Args = args
	} else {
		entry = &Entry{
			ID:           uuid.New().String(),
			VKey:         vkey,
			ExpireAt:     expireAt,
			ExpireAction: expireAction,
			Args:         args,
		}
	}

	q.insert(entry)
	q.index[vkey] = entry
	return entry, !known
}

// insert splices the entry in front of the first queue position with a
// later expiry; FIFO order is preserved among equal times.
func (q *Queue) insert(entry *Entry) {
	pos := sort.Search(len(q.entries), func(i int) bool {
		return q.entries[i].ExpireAt > entry.ExpireAt
	})
	q.entries = append(q.entries, nil)
	copy(q.entries[pos+1:], q.entries[pos:])
	q.entries[pos] = entry
}

func (q *Queue) remove(entry *Entry) {
	for i, candidate := range q.entries {
		if candidate == entry {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// Front returns the earliest-expiring entry; always defined because of the
// sentinel.
func (q *Queue) Front() *Entry {
	return q.entries[0]
}

// Tick pops every entry due at or before now, invoking fire for each, and
// reports how many fired. The sentinel never pops.
func (q *Queue) Tick(now int64, fire func(*Entry)) int {
	fired := 0
	for q.entries[0].ExpireAt <= now && q.entries[0].VKey != "" {
		entry := q.entries[0]
		q.entries = q.entries[1:]
		delete(q.index, entry.VKey)
		fire(entry)
		fired++
	}
	return fired
}

// Flush fires and removes every live entry whose argument map is a superset
// of filter. An empty filter drains the whole queue. The sentinel stays.
func (q *Queue) Flush(filter map[string]string, fire func(*Entry)) int {
	fired := 0
	kept := q.entries[:0]
	for _, entry := range q.entries {
		if entry.VKey == "" || !matches(entry.Args, filter) {
			kept = append(kept, entry)
			continue
		}
		delete(q.index, entry.VKey)
		fire(entry)
		fired++
	}
	q.entries = kept
	return fired
}

func matches(args map[string]string, filter map[string]string) bool {
	for key, value := range filter {
		if args[key] != value {
			return false
		}
	}
	return true
}

// Lookup returns the live entry for vkey, if any.
func (q *Queue) Lookup(vkey string) (*Entry, bool) {
	entry, ok := q.index[vkey]
	return entry, ok
}

// Len counts live entries, excluding the sentinel.
func (q *Queue) Len() int {
	return len(q.entries) - 1
}

// Entries returns the live entries in expiry order, excluding the sentinel.
func (q *Queue) Entries() []*Entry {
	live := make([]*Entry, 0, q.Len())
	for _, entry := range q.entries {
		if entry.VKey != "" {
			live = append(live, entry)
		}
	}
	return live
}

// MaxTimeout caps the main loop wakeup so periodic work still happens
// during quiet periods.
const MaxTimeout int64 = 60

// NextWakeup computes the seconds until the next expiry, clamped to
// [0, MaxTimeout].
func (q *Queue) NextWakeup(now int64) int64 {
	wait := q.Front().ExpireAt - now
	if wait < 0 {
		return 0
	}
	if wait > MaxTimeout {
		return MaxTimeout
	}
	return wait
}
