package scripting

import (
	"fmt"
	"math"
)

// newThreadID returns the smallest id not held by any active, pending or
// scratch thread. Ids of removed threads become available again.
func (s *Scheduler) newThreadID() (ThreadID, error) {
	used := make(map[ThreadID]struct{}, len(s.active)+len(s.pending)+len(s.scratch))
	for _, list := range [...][]*Thread{s.active, s.pending, s.scratch} {
		for _, t := range list {
			used[t.id] = struct{}{}
		}
	}

	limit := uint64(s.opts.MaxThreadID)
	if limit == 0 {
		limit = math.MaxUint32
	}
	for id := uint64(1); id <= limit; id++ {
		if _, taken := used[ThreadID(id)]; !taken {
			return ThreadID(id), nil
		}
	}
	return 0, fmt.Errorf("%w: %d threads alive", ErrThreadIDsExhausted, len(used))
}
