package clean

import "sopguard/internal/sop"

// DedupIndex tracks the (case, officer, type) keys already kept.
// Keys follow the format: {case_id}|{officer_id}|{deviation_type}
type DedupIndex struct {
	known map[string]bool
}

// NewDedupIndex creates an empty dedup index.
func NewDedupIndex() *DedupIndex {
	return &DedupIndex{known: make(map[string]bool)}
}

// Contains returns true if the key is already known.
func (d *DedupIndex) Contains(key string) bool {
	return d.known[key]
}

// Add marks a key as known.
func (d *DedupIndex) Add(key string) {
	d.known[key] = true
}

// Size returns the number of known keys.
func (d *DedupIndex) Size() int {
	return len(d.known)
}

// Filter keeps the first deviation per key and counts the rest.
func (d *DedupIndex) Filter(devs []sop.Deviation) (kept []sop.Deviation, dupes int) {
	for _, dev := range devs {
		key := dev.DedupKey()
		if d.Contains(key) {
			dupes++
			continue
		}
		d.Add(key)
		kept = append(kept, dev)
	}
	return
}
