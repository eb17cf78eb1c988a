package hdf5

import "sync"

// mu serializes every entry into the format layer. Exported functions take
// it once and call unexported helpers that assume it is held.
var mu sync.Mutex

// lock acquires mu and returns its release, for use as defer lock()().
func lock() func() {
	mu.Lock()
	return mu.Unlock
}
