package util

import "strconv"

// LockKey returns "<namespace>_<id>_lock". The format is shared by every
// process contending for the same lock and must not change.
func LockKey(namespace string, id uint64) string {
	return namespace + "_" + strconv.FormatUint(id, 10) + "_lock"
}

// ValidKey reports whether key is a legal memcached key no longer than max
// bytes: non-empty, no spaces, no control characters.
func ValidKey(key string, max int) bool {
	if key == "" || (max > 0 && len(key) > max) {
		return false
	}
	for i := 0; i < len(key); i++ {
		if c := key[i]; c <= ' ' || c == 0x7f {
			return false
		}
	}
	return true
}
