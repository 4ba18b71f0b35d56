package store

import "errors"

// ErrOutOfMemory is returned when a value cannot be made to fit even
// after evicting the entire LRU index (spec.md §4.1 eviction). The
// connection driver renders it as "SERVER_ERROR out of memory".
var ErrOutOfMemory = errors.New("out of memory")

// ErrNotNumeric is returned by Incr/Decr when the existing value does not
// parse as an unsigned decimal integer (spec.md §4.1 incr/decr row). The
// connection driver renders it as
// "CLIENT_ERROR cannot increment or decrement non-numeric value" and, per
// spec.md §4.1 on noreply, treats it as a suppressible domain outcome
// rather than a framing error.
var ErrNotNumeric = errors.New("cannot increment or decrement non-numeric value")
