package framealloc

import "github.com/dustin/go-humanize"

// TrimPools reclaims pooled memory that sits contiguously below the arena
// tail and returns the number of bytes reclaimed.
//
// All free lists are merged into one list ordered by descending TailOrder.
// Entries are then popped from the front for as long as the strategy reports
// them as the last block, each reclaim exposing the next candidate, across
// block boundaries included. The first entry that is not the last block is
// a hole: the scan stops there and everything left is put back on its class
// list.
func (p *PooledArena) TrimPools() int {
	if !p.pooling || p.npooled == 0 {
		return 0
	}
	merged := p.sortByTail(p.gather())

	reclaimed, n := 0, 0
	for merged != nilEntry {
		e := p.entries[merged]
		if !p.strategy.IsLastBlock(e.ptr, e.size) {
			break
		}
		p.strategy.Deallocate(e.ptr, e.size)
		reclaimed += e.size
		p.pooled -= e.size
		p.npooled--
		n++
		p.freeSlot(merged)
		merged = e.next
	}
	p.rebucket(merged)

	p.log.V(1).Info("trimmed pools",
		"reclaimed", humanize.IBytes(uint64(reclaimed)), "entries", n,
		"pooled", humanize.IBytes(uint64(p.pooled)), "remaining", p.npooled)
	return reclaimed
}

// gather empties every class list into one unordered list, refreshing the
// tail order of each entry on the way.
func (p *PooledArena) gather() int32 {
	merged := nilEntry
	for class := range p.heads {
		for idx := p.heads[class]; idx != nilEntry; {
			e := &p.entries[idx]
			next := e.next
			e.order = p.strategy.TailOrder(e.ptr, e.size)
			e.next = merged
			merged = idx
			idx = next
		}
		p.heads[class] = nilEntry
	}
	return merged
}

// sortByTail merge-sorts the list at head by descending order, relinking the
// existing next indices in place.
func (p *PooledArena) sortByTail(head int32) int32 {
	if head == nilEntry || p.entries[head].next == nilEntry {
		return head
	}
	slow, fast := head, p.entries[head].next
	for fast != nilEntry && p.entries[fast].next != nilEntry {
		slow = p.entries[slow].next
		fast = p.entries[p.entries[fast].next].next
	}
	right := p.entries[slow].next
	p.entries[slow].next = nilEntry
	return p.mergeByTail(p.sortByTail(head), p.sortByTail(right))
}

func (p *PooledArena) mergeByTail(a, b int32) int32 {
	head, tail := nilEntry, nilEntry
	for a != nilEntry && b != nilEntry {
		var take int32
		if p.entries[a].order >= p.entries[b].order {
			take, a = a, p.entries[a].next
		} else {
			take, b = b, p.entries[b].next
		}
		if tail == nilEntry {
			head = take
		} else {
			p.entries[tail].next = take
		}
		tail = take
	}
	rest := a
	if rest == nilEntry {
		rest = b
	}
	if tail == nilEntry {
		return rest
	}
	p.entries[tail].next = rest
	return head
}

// rebucket pushes every entry of the list at head back onto its class list.
func (p *PooledArena) rebucket(head int32) {
	for idx := head; idx != nilEntry; {
		e := &p.entries[idx]
		next := e.next
		class := p.classes.SizeClassOf(e.size)
		e.next = p.heads[class]
		p.heads[class] = idx
		idx = next
	}
}
