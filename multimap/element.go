package multimap

import "github.com/grailbio/plex"

// Element is a single (key, payload) input pair to Build: the sorted key
// stream paired with its associated value, replacing the bare-tuple
// language of a (K, u64) pair with a named type.
type Element[K plex.Key] struct {
	Key     K
	Payload uint64
}
