package namespace

import "os"

var cachedHostname = func() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}()

// hostname is the access-statistics host key, scoping LRU/LFU culling
// decisions to this process's machine.
func hostname() string { return cachedHostname }
