package safeguard

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// MemoryGuard is the ingestion loop's resource circuit breaker: the
// ingestion loop polls it every checkpoint interval and stops gracefully
// when system memory pressure crosses the configured fraction, persisting
// progress instead of letting the next page allocation OOM the process.
type MemoryGuard struct {
	// Threshold is the used-memory fraction above which Exceeded trips.
	Threshold float64

	// meminfoPath is overridable for tests; defaults to /proc/meminfo.
	meminfoPath string
}

// NewMemoryGuard creates a guard tripping at the given used-memory
// fraction. A threshold <= 0 falls back to 0.85.
func NewMemoryGuard(threshold float64) *MemoryGuard {
	if threshold <= 0 {
		threshold = 0.85
	}
	return &MemoryGuard{Threshold: threshold, meminfoPath: "/proc/meminfo"}
}

// Exceeded reports the current used-memory fraction and whether it crosses
// the threshold. On platforms without /proc/meminfo the guard reports not
// exceeded: the breaker is a Linux-deployment safety net, not a hard
// correctness requirement, and failing open keeps local development on
// other platforms working.
func (g *MemoryGuard) Exceeded() (fraction float64, exceeded bool) {
	total, available, ok := g.readMeminfo()
	if !ok || total == 0 {
		return 0, false
	}
	fraction = 1 - float64(available)/float64(total)
	return fraction, fraction > g.Threshold
}

// readMeminfo parses MemTotal and MemAvailable out of /proc/meminfo.
func (g *MemoryGuard) readMeminfo() (total, available uint64, ok bool) {
	f, err := os.Open(g.meminfoPath)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = value
		case "MemAvailable:":
			available = value
		}
		if total > 0 && available > 0 {
			return total, available, true
		}
	}
	return 0, 0, false
}
