package cache

import "time"

// node is a single cached item linked into a recency list.
type node[V any] struct {
	key        string
	value      V
	createdAt  time.Time
	expiresAt  time.Time
	lastAccess time.Time
	prev       *node[V]
	next       *node[V]
}

// expired reports whether the entry is no longer valid at now.
// A zero expiresAt never expires.
func (n *node[V]) expired(now time.Time) bool {
	return !n.expiresAt.IsZero() && !now.Before(n.expiresAt)
}

// lruList keeps nodes ordered from most (head) to least (tail) recently used.
// Not safe for concurrent use; callers hold the owning cache's lock.
type lruList[V any] struct {
	head *node[V]
	tail *node[V]
}

// moveToFront moves an existing entry to the front of the list.
func (l *lruList[V]) moveToFront(n *node[V]) {
	if n == l.head {
		return
	}
	l.remove(n)
	l.pushFront(n)
}

// pushFront adds an entry to the front of the list.
func (l *lruList[V]) pushFront(n *node[V]) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

// remove unlinks an entry without touching any index.
func (l *lruList[V]) remove(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}

// back returns the least recently used entry, or nil.
func (l *lruList[V]) back() *node[V] {
	return l.tail
}

// reset drops every link.
func (l *lruList[V]) reset() {
	l.head = nil
	l.tail = nil
}
