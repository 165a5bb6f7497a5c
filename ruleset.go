package zwint

// RuleID is an opaque monotonic identifier assigned to a rule at
// insertion and stored on it (§3 [FULL]); cancel and unregister match
// by device_num and key, not by RuleID, and it never appears on the
// wire or in an HTTP notification.
type RuleID uint64

// ruleSet is the ordered monitor/intercept rule store (§3 invariant 2,
// §4.5, §9). It is kept sorted by deadline ascending with deadline==0
// ("never") sorting strictly after every finite deadline, so the head
// is always either the earliest-expiring rule or a no-timeout rule.
//
// A plain slice is used in place of the source's circular doubly
// linked list: §9 explicitly permits any structure that preserves (a)
// head = earliest deadline with 0-as-∞, and (b) insertion order among
// equal deadlines.
type ruleSet struct {
	rules  []*Rule
	nextID RuleID
}

// deadlineLess reports whether a sorts before b, with 0 treated as
// +infinity (§3 invariant 2, §4.5).
func deadlineLess(a, b int64) bool {
	if a == 0 {
		return false
	}
	if b == 0 {
		return true
	}
	return a < b
}

// insert places r in deadline order, before the first rule whose
// deadline is strictly later (linear scan, per §4.5).
func (rs *ruleSet) insert(r *Rule) {
	i := 0
	for i < len(rs.rules) && !deadlineLess(r.deadline, rs.rules[i].deadline) {
		i++
	}
	rs.rules = append(rs.rules, nil)
	copy(rs.rules[i+1:], rs.rules[i:])
	rs.rules[i] = r
}

// head returns the earliest-expiring rule, or nil if the store is
// empty.
func (rs *ruleSet) head() *Rule {
	if len(rs.rules) == 0 {
		return nil
	}
	return rs.rules[0]
}

// removeAt deletes the rule at index i.
func (rs *ruleSet) removeAt(i int) {
	rs.rules = append(rs.rules[:i], rs.rules[i+1:]...)
}

// remove deletes r from the store by identity, if present.
func (rs *ruleSet) remove(r *Rule) {
	for i, c := range rs.rules {
		if c == r {
			rs.removeAt(i)
			return
		}
	}
}

// expired removes and returns every rule whose deadline has passed
// (deadline in (0, now]), in deadline order, for §4.5's timeout sweep.
func (rs *ruleSet) expired(now int64) []*Rule {
	var out []*Rule
	for {
		h := rs.head()
		if h == nil || h.deadline == 0 || h.deadline > now {
			break
		}
		out = append(out, h)
		rs.removeAt(0)
	}
	return out
}

// cancel removes the first rule matching both device_num and key
// (§3 invariant 3, §6.1). Returns the removed rule, or nil if none
// matched.
func (rs *ruleSet) cancel(deviceNum int, key string) *Rule {
	for i, r := range rs.rules {
		if r.DeviceNum == deviceNum && r.Key == key {
			rs.removeAt(i)
			return r
		}
	}
	return nil
}

// unregisterDevice removes every rule matching deviceNum, or every
// rule if deviceNum is nil (§6.1).
func (rs *ruleSet) unregisterDevice(deviceNum *int) []*Rule {
	var removed []*Rule
	kept := rs.rules[:0]
	for _, r := range rs.rules {
		if deviceNum == nil || r.DeviceNum == *deviceNum {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	rs.rules = kept
	return removed
}

// forEach visits rules in list order, allowing the visitor to signal
// early termination (matches §4.4 step 4's "stop scanning further
// rules once intercepted" and "continue scan from predecessor" after
// a oneshot delete). The visitor returns (stop, deleteCurrent).
//
// Iteration is index-based over a snapshot index so that deleting the
// current rule resumes correctly at its former predecessor, mirroring
// the source's `m = p` rewind in zwint.c after delete_from_monitor_list.
func (rs *ruleSet) forEach(visit func(r *Rule) (stop, deleteCurrent bool)) {
	i := 0
	for i < len(rs.rules) {
		r := rs.rules[i]
		stop, del := visit(r)
		if del {
			rs.removeAt(i)
			// Resume scanning from the predecessor's successor, i.e.
			// stay at the same index (the next rule has shifted down
			// into it).
		} else {
			i++
		}
		if stop {
			return
		}
	}
}
