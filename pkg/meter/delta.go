package meter

// deriveDelta converts one observation into the marginal contribution
// not yet counted, and the session snapshot to store back.
//
// A backward jump in either cumulative counter means the session id was
// reused after a restart; the whole new value is the delta (full
// resync), never a negative number.
//
// The cache snapshot is counted only when this observation represents a
// newly completed call: either cumulative counter advanced, or the
// snapshot itself changed (a fully-cached call leaves the cumulative
// input flat). Otherwise this is a duplicate refresh of one in-flight
// call and the delta is zero in all four categories.
func deriveDelta(prev SessionState, obs Observation) (delta TokenCounts, next SessionState, resync bool) {
	dFresh := obs.FreshTotal - prev.LastFresh
	if dFresh < 0 {
		dFresh = obs.FreshTotal
		resync = true
	}
	dOut := obs.OutTotal - prev.LastOutput
	if dOut < 0 {
		dOut = obs.OutTotal
		resync = true
	}

	newCall := dFresh > 0 || dOut > 0 ||
		obs.CacheRead != prev.LastCacheRead || obs.CacheWrite != prev.LastCacheWrite
	if newCall {
		delta = TokenCounts{
			Input:      dFresh,
			Output:     dOut,
			CacheRead:  obs.CacheRead,
			CacheWrite: obs.CacheWrite,
		}
	}

	next = SessionState{
		LastFresh:      obs.FreshTotal,
		LastOutput:     obs.OutTotal,
		LastCacheRead:  obs.CacheRead,
		LastCacheWrite: obs.CacheWrite,
	}
	return delta, next, resync
}
