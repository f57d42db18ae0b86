package tree

import "lastree/tuple"

// maxSoftFailures is the number of consecutive non-adjacent path-walk
// inserts after which the fast path is hard-reset onto the leaf that took
// the latest one, per spec.md §4.3. Soft failures leave fp's bounds as
// they are.
const maxSoftFailures = 3

// fastPathState caches the identity and key interval of one leaf so a
// stream of inserts landing in it can skip the root-to-leaf descent.
// The interval is half-open, [min, max): min is the smallest key the
// cached leaf is known to hold, max is the smallest key known NOT to
// belong there (usually the next leaf's min, i.e. the routing upper
// bound findLeafPath returns). minUnbounded/maxUnbounded stand in for
// "no lower/upper bound is known yet", avoiding a sentinel tuple.Field
// value that might collide with a real key.
type fastPathState struct {
	valid bool
	leaf  uint32

	min          tuple.Field
	minUnbounded bool
	max          tuple.Field
	maxUnbounded bool

	softFailures int
}

func (fp *fastPathState) reset() { *fp = fastPathState{} }

func (fp *fastPathState) set(leafID uint32, min tuple.Field, minUnbounded bool, max tuple.Field, maxUnbounded bool) {
	fp.valid = true
	fp.leaf = leafID
	fp.min, fp.minUnbounded = min, minUnbounded
	fp.max, fp.maxUnbounded = max, maxUnbounded
	fp.softFailures = 0
}

// canUse reports whether key falls in [min, max) of the cached leaf.
func (fp *fastPathState) canUse(ty tuple.Type, key tuple.Field) bool {
	if !fp.valid {
		return false
	}
	if !fp.minUnbounded && tuple.Compare(ty, key, fp.min) < 0 {
		return false
	}
	if !fp.maxUnbounded && tuple.Compare(ty, key, fp.max) >= 0 {
		return false
	}
	return true
}

// isSuccessor reports whether key equals the cached leaf's exclusive
// upper bound (fp.max), i.e. the first key just past [min, max), the
// cheap adjacency check original_source uses to extend the fast path
// without a full bounds recheck. Only
// meaningful for Int32 keys, the one type with an unambiguous "+1"; any
// other key type always falls through to the soft-failure counter.
func isSuccessor(ty tuple.Type, key, upperBoundExclusive tuple.Field) bool {
	if ty != tuple.Int32 {
		return false
	}
	return key.I32 == upperBoundExclusive.I32
}

// afterSoftFailure records one path-walk insert whose key fell outside
// [min, max) without being adjacent to max, and reports whether the fast
// path has now been dropped entirely (fp is reset when it returns true).
func (fp *fastPathState) afterSoftFailure() (shouldReset bool) {
	fp.softFailures++
	if fp.softFailures >= maxSoftFailures {
		fp.reset()
		return true
	}
	return false
}

// extendMax advances the cached leaf's upper bound after an adjacent
// insert, the "soft update" that keeps the fast path alive without a
// fresh descent.
func (fp *fastPathState) extendMax(newMax tuple.Field) {
	fp.max = newMax
	fp.maxUnbounded = false
	fp.softFailures = 0
}
