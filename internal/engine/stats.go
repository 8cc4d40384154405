package engine

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// perfStats accumulates per-policy handler and resolver durations for one
// run. Owned by RunCheck and discarded when the run ends.
type perfStats struct {
	totalFiles    int
	handlerTimes  map[string]time.Duration
	resolverTimes map[string]time.Duration
}

func newPerfStats() *perfStats {
	return &perfStats{
		handlerTimes:  make(map[string]time.Duration),
		resolverTimes: make(map[string]time.Duration),
	}
}

func (s *perfStats) recordHandler(policyName string, d time.Duration) {
	s.handlerTimes[policyName] += d
}

func (s *perfStats) recordResolver(policyName string, d time.Duration) {
	s.resolverTimes[policyName] += d
}

// log writes the stats summary, slowest policies first.
func (s *perfStats) log(w io.Writer) {
	fmt.Fprintf(w, "\nPerformance Statistics\n")
	fmt.Fprintf(w, "  Files processed: %d\n", s.totalFiles)

	if len(s.handlerTimes) > 0 {
		fmt.Fprintf(w, "  Handler execution times:\n")
		writeSorted(w, s.handlerTimes)
	}

	if len(s.resolverTimes) > 0 {
		fmt.Fprintf(w, "  Resolver execution times:\n")
		writeSorted(w, s.resolverTimes)
	}
}

func writeSorted(w io.Writer, times map[string]time.Duration) {
	type entry struct {
		name string
		dur  time.Duration
	}
	entries := make([]entry, 0, len(times))
	for name, dur := range times {
		entries = append(entries, entry{name, dur})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].dur != entries[j].dur {
			return entries[i].dur > entries[j].dur
		}
		return entries[i].name < entries[j].name
	})
	for _, e := range entries {
		fmt.Fprintf(w, "    %s: %.1fms\n", e.name, float64(e.dur.Microseconds())/1000.0)
	}
}
