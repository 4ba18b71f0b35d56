package protocol

import "strconv"

// validateKey enforces spec.md §4.3: 1-250 bytes, no control characters
// or whitespace (conservatively, only 0x21-0x7E is accepted).
func validateKey(key []byte) bool {
	if len(key) == 0 || len(key) > 250 {
		return false
	}
	for _, b := range key {
		if b < 0x21 || b > 0x7E {
			return false
		}
	}
	return true
}

func parseUint32(tok []byte) (uint32, bool) {
	v, err := strconv.ParseUint(string(tok), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func parseUint64(tok []byte) (uint64, bool) {
	v, err := strconv.ParseUint(string(tok), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseInt32(tok []byte) (int32, bool) {
	v, err := strconv.ParseInt(string(tok), 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(v), true
}
