package dsa

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/trane-project/trane/internal/domain"
)

// BloomConfig configures the probabilistic prefilter in front of the exact
// frequency counters.
type BloomConfig struct {
	ExpectedItems int     // expected number of distinct handles tracked
	FPRate        float64 // desired false positive rate, e.g. 0.001
}

// DefaultBloomConfig returns defaults sized for a few thousand recently
// emitted exercises at a 0.1% false-positive rate.
func DefaultBloomConfig() BloomConfig {
	return BloomConfig{ExpectedItems: 4096, FPRate: 0.001}
}

// bloom is a space-efficient probabilistic set over unit handles, used as a
// fast "definitely never emitted" short-circuit before consulting the exact
// (but larger) frequency map.
type bloom struct {
	bits    []uint64
	numBits uint
	numHash uint
}

func newBloom(cfg BloomConfig) *bloom {
	if cfg.ExpectedItems <= 0 {
		cfg.ExpectedItems = 4096
	}
	if cfg.FPRate <= 0 || cfg.FPRate >= 1 {
		cfg.FPRate = 0.001
	}
	n := float64(cfg.ExpectedItems)
	p := cfg.FPRate
	m := uint(math.Ceil(-(n * math.Log(p)) / (math.Log(2) * math.Log(2))))
	k := uint(math.Ceil(float64(m) / n * math.Log(2)))
	if m == 0 {
		m = 64
	}
	if k == 0 {
		k = 1
	}
	words := (m + 63) / 64
	return &bloom{bits: make([]uint64, words), numBits: m, numHash: k}
}

func (b *bloom) add(h domain.UnitHandle) {
	h1, h2 := bloomHashes(h)
	for i := uint(0); i < b.numHash; i++ {
		pos := b.nth(h1, h2, i)
		b.bits[pos/64] |= 1 << (pos % 64)
	}
}

func (b *bloom) mightContain(h domain.UnitHandle) bool {
	h1, h2 := bloomHashes(h)
	for i := uint(0); i < b.numHash; i++ {
		pos := b.nth(h1, h2, i)
		if b.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

func (b *bloom) nth(h1, h2 uint32, i uint) uint {
	return uint((uint64(h1) + uint64(i)*uint64(h2)) % uint64(b.numBits))
}

func (b *bloom) reset() {
	for i := range b.bits {
		b.bits[i] = 0
	}
}

func bloomHashes(h domain.UnitHandle) (uint32, uint32) {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(h))
	binary.BigEndian.PutUint32(buf[4:8], uint32(h)^0x9e3779b9)
	sum := sha256.Sum256(buf[:])
	return binary.BigEndian.Uint32(sum[0:4]), binary.BigEndian.Uint32(sum[4:8])
}

// AntiRepeatConfig configures the decay behavior of the frequency counters.
type AntiRepeatConfig struct {
	// HalfLife is how long until a counter's contribution halves. Smaller
	// means exercises become eligible for repetition sooner.
	HalfLife time.Duration
	Bloom    BloomConfig
	// Now is an injectable clock for testing; defaults to time.Now.
	Now func() time.Time
}

// DefaultAntiRepeatConfig returns spec defaults: a 30-minute half-life.
func DefaultAntiRepeatConfig() AntiRepeatConfig {
	return AntiRepeatConfig{HalfLife: 30 * time.Minute, Bloom: DefaultBloomConfig(), Now: time.Now}
}

// entry is one exercise's decaying emission count.
type entry struct {
	count    float64
	lastSeen time.Time
}

// AntiRepeat tracks how recently each exercise handle was emitted in a
// batch, so Phase D sampling can down-weight candidates that were just
// served (spec §4.7 Phase E). A bloom filter fronts the exact map so the
// overwhelmingly common case — "this handle has never been emitted" — is
// O(k) over bits instead of a map lookup plus decay-math.
type AntiRepeat struct {
	mu      sync.Mutex
	cfg     AntiRepeatConfig
	filter  *bloom
	counts  map[domain.UnitHandle]*entry
}

// NewAntiRepeat creates a tracker with cfg, filling in defaults for zero
// fields.
func NewAntiRepeat(cfg AntiRepeatConfig) *AntiRepeat {
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AntiRepeat{
		cfg:    cfg,
		filter: newBloom(cfg.Bloom),
		counts: make(map[domain.UnitHandle]*entry),
	}
}

// RecordEmission registers that h was just emitted in a batch.
func (a *AntiRepeat) RecordEmission(h domain.UnitHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.cfg.Now()
	if !a.filter.mightContain(h) {
		a.filter.add(h)
	}
	e, ok := a.counts[h]
	if !ok {
		a.counts[h] = &entry{count: 1, lastSeen: now}
		return
	}
	e.count = a.decayed(e, now) + 1
	e.lastSeen = now
}

// Weight returns the sampling weight multiplier for h: 1/(1+recent_count),
// where recent_count is the exponentially decayed emission count (spec
// §4.7 Phase E). Handles never seen (per the bloom prefilter) short-circuit
// to weight 1.0 without touching the exact map.
func (a *AntiRepeat) Weight(h domain.UnitHandle) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.filter.mightContain(h) {
		return 1.0
	}
	e, ok := a.counts[h]
	if !ok {
		return 1.0
	}
	count := a.decayed(e, a.cfg.Now())
	return 1.0 / (1.0 + count)
}

// decayed returns e's count after applying exponential decay for the time
// elapsed since lastSeen, without mutating e.
func (a *AntiRepeat) decayed(e *entry, now time.Time) float64 {
	elapsed := now.Sub(e.lastSeen)
	if elapsed <= 0 {
		return e.count
	}
	halfLives := float64(elapsed) / float64(a.cfg.HalfLife)
	return e.count * math.Pow(0.5, halfLives)
}

// Reset clears all tracked state, including the bloom prefilter.
func (a *AntiRepeat) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter.reset()
	a.counts = make(map[domain.UnitHandle]*entry)
}

// debugKey renders a handle for diagnostics; not used on any hot path.
func debugKey(h domain.UnitHandle) string {
	return strconv.Itoa(int(h))
}
