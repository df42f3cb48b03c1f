package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 4096

// OutcomeOK marks a record whose operation completed without error.
const OutcomeOK = "ok"

type (
	Record struct {
		Seq      uint64        `json:"seq"`              // assigned by Append, starts at 1
		Time     time.Time     `json:"time"`             // when the operation started
		Op       string        `json:"op"`               // operation name, e.g. "lookup"
		Device   string        `json:"device,omitempty"` // device backing the instance
		Ino      uint64        `json:"ino,omitempty"`    // inode the operation acted on
		Name     string        `json:"name,omitempty"`   // entry name for namespace operations
		Outcome  string        `json:"outcome"`          // OutcomeOK or a short failure code
		Duration time.Duration `json:"duration_ns"`
	}
	Journal struct {
		mu       sync.RWMutex
		ring     []Record
		head     int // index of the oldest record
		count    int
		nextSeq  uint64
		dropped  uint64
		capacity int
	}
)

// New returns an empty journal holding at most capacity records.
func New(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{
		ring:     make([]Record, capacity),
		capacity: capacity,
		nextSeq:  1,
	}
}

// Append stores r, assigning its sequence number, and returns the stored copy.
func (j *Journal) Append(r Record) Record {
	j.mu.Lock()
	defer j.mu.Unlock()

	r.Seq = j.nextSeq
	j.nextSeq++
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	if r.Outcome == "" {
		r.Outcome = OutcomeOK
	}

	if j.count == j.capacity {
		j.ring[j.head] = r
		j.head = (j.head + 1) % j.capacity
		j.dropped++
		return r
	}
	j.ring[(j.head+j.count)%j.capacity] = r
	j.count++
	return r
}

// Iterate yields records oldest first. It works on a snapshot, so yield
// may append to the journal without deadlocking.
func (j *Journal) Iterate(yield func(Record) bool) {
	for _, r := range j.Records() {
		if !yield(r) {
			return
		}
	}
}

// Records returns a copy of the held records, oldest first.
func (j *Journal) Records() []Record {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Record, j.count)
	for i := range j.count {
		out[i] = j.ring[(j.head+i)%j.capacity]
	}
	return out
}

// Since returns the held records with a sequence number greater than seq.
func (j *Journal) Since(seq uint64) []Record {
	var out []Record
	for r := range j.Iterate {
		if r.Seq > seq {
			out = append(out, r)
		}
	}
	return out
}

// CountByOp tallies the held records per operation name.
func (j *Journal) CountByOp() map[string]int {
	counts := make(map[string]int)
	for r := range j.Iterate {
		counts[r.Op]++
	}
	return counts
}

func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.count
}

func (j *Journal) Capacity() int {
	return j.capacity
}

// Dropped reports how many records were evicted to make room.
func (j *Journal) Dropped() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.dropped
}

func (j *Journal) MarshalJSON() ([]byte, error) {
	j.mu.RLock()
	capacity, dropped := j.capacity, j.dropped
	j.mu.RUnlock()
	return json.Marshal(struct {
		Capacity int      `json:"capacity"`
		Dropped  uint64   `json:"dropped"`
		Records  []Record `json:"records"`
	}{
		Capacity: capacity,
		Dropped:  dropped,
		Records:  j.Records(),
	})
}

func (j *Journal) UnmarshalJSON(data []byte) error {
	var aux struct {
		Capacity int      `json:"capacity"`
		Dropped  uint64   `json:"dropped"`
		Records  []Record `json:"records"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Capacity <= 0 {
		aux.Capacity = DefaultCapacity
	}
	if len(aux.Records) > aux.Capacity {
		return fmt.Errorf("journal holds %d records but capacity is %d", len(aux.Records), aux.Capacity)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.capacity = aux.Capacity
	j.ring = make([]Record, aux.Capacity)
	copy(j.ring, aux.Records)
	j.head = 0
	j.count = len(aux.Records)
	j.dropped = aux.Dropped
	j.nextSeq = 1
	if j.count > 0 {
		j.nextSeq = aux.Records[j.count-1].Seq + 1
	}
	return nil
}

// Save writes the journal as JSON. A directory path gets "journal.json"
// appended.
func (j *Journal) Save(path string) error {
	if !strings.HasSuffix(path, ".json") {
		path = filepath.Join(path, "journal.json")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	je := json.NewEncoder(f)
	je.SetIndent("", "  ")
	return je.Encode(j)
}

// Load reads a journal previously written by Save.
func Load(path string) (*Journal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	j := New(0)
	if err := json.NewDecoder(f).Decode(j); err != nil {
		return nil, fmt.Errorf("failed to decode journal %s: %w", path, err)
	}
	return j, nil
}
