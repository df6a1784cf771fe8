package stats

import "sort"

// Count is one key of a Counter with its tally.
type Count struct {
	Key string `json:"key"`
	N   int    `json:"count"`
}

// Counter tallies string keys and remembers the order in which keys were
// first seen, so that rankings break ties by first appearance.
type Counter struct {
	idx   map[string]int
	items []Count
	total int
}

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{idx: make(map[string]int)}
}

// Add increments key by one.
func (c *Counter) Add(key string) { c.AddN(key, 1) }

// AddN increments key by n.
func (c *Counter) AddN(key string, n int) {
	i, ok := c.idx[key]
	if !ok {
		i = len(c.items)
		c.idx[key] = i
		c.items = append(c.items, Count{Key: key})
	}
	c.items[i].N += n
	c.total += n
}

// Get returns the tally for key.
func (c *Counter) Get(key string) int {
	if i, ok := c.idx[key]; ok {
		return c.items[i].N
	}
	return 0
}

// Len returns the number of distinct keys.
func (c *Counter) Len() int { return len(c.items) }

// Total returns the sum of all tallies.
func (c *Counter) Total() int { return c.total }

// Keys returns the keys in first-seen order.
func (c *Counter) Keys() []string {
	out := make([]string, len(c.items))
	for i, it := range c.items {
		out[i] = it.Key
	}
	return out
}

// Top returns the n most common keys, most common first. n <= 0 returns all.
func (c *Counter) Top(n int) []Count {
	out := append([]Count(nil), c.items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].N > out[j].N })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// MostCommon returns the most common key, or "" when empty.
func (c *Counter) MostCommon() string {
	if top := c.Top(1); len(top) > 0 {
		return top[0].Key
	}
	return ""
}

// Map returns the tallies as a map.
func (c *Counter) Map() map[string]int {
	out := make(map[string]int, len(c.items))
	for _, it := range c.items {
		out[it.Key] = it.N
	}
	return out
}
