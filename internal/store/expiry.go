package store

// thirtyDaysSeconds is the boundary the wire protocol uses to tell a
// relative exptime apart from an absolute POSIX timestamp (spec.md §3
// "Expiry encoding").
const thirtyDaysSeconds = 30 * 24 * 3600

// encodeExpiry turns a client-supplied exptime into an absolute unix
// timestamp, or 0 for "never". Negative values are accepted by the wire
// grammar (exptime is a signed 32-bit field) and mean the item is already
// expired on arrival, per spec.md §4.3.
func encodeExpiry(raw int32, now int64) int64 {
	switch {
	case raw == 0:
		return 0
	case raw < 0:
		// Already expired; any timestamp <= now satisfies the invariant.
		return now - 1
	case int64(raw) <= thirtyDaysSeconds:
		return now + int64(raw)
	default:
		return int64(raw)
	}
}

// alreadyExpired reports whether an encoded absolute expiry has already
// passed "now" — the case spec.md §3 describes as: the write still
// reports success, but nothing is actually stored.
func alreadyExpired(expiry, now int64) bool {
	return expiry != 0 && expiry <= now
}
