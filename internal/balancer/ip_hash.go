package balancer

import (
	"fmt"
	"hash/fnv"
)

// IPHashSelector is consistent per client IP while the target list is
// unchanged: the same clientIP always maps to the same index.
type IPHashSelector struct{}

func NewIPHashSelector() *IPHashSelector {
	return &IPHashSelector{}
}

func (s *IPHashSelector) Name() string { return "ip-hash" }

func (s *IPHashSelector) Select(targets []string, clientIP string) (string, error) {
	if len(targets) == 0 {
		return "", fmt.Errorf("no targets available")
	}
	if clientIP == "" {
		return targets[0], nil
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientIP))
	idx := (h.Sum32() & 0x7FFFFFFF) % uint32(len(targets))
	return targets[idx], nil
}
