package spline

import "github.com/grailbio/plex"

// Coord is a single breakpoint of a spline: key X has rank Y in the input.
// Breakpoints form a strictly-X-increasing sequence beginning with
// (minKey, 0) and ending with (maxKey, n-1). When every key is equal, the
// sequence is (minKey, 0) and (maxKey, n-1), which share the same X.
type Coord[K plex.Key] struct {
	X K
	Y uint32
}
