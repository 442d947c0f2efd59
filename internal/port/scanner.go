// Package port implements the host-port preflight for the deploy stage.
//
// A compose deploy that publishes a port already held by another
// process fails halfway through `docker compose up`, leaving a
// partially created stack behind. Probing the published ports first
// turns that into a clean pre-deploy error.
package port

import (
	"fmt"
	"net"
	"strings"
)

// Scanner checks whether specific host ports are free.
//
// It asks the operating system directly via net.Listen rather than
// parsing /proc/net/* or shelling out to lsof/ss, which may need
// elevated permissions. Defined as a struct so future options (bind
// address, timeout) can be added without breaking callers, and so it
// can be injected as a dependency in tests.
type Scanner struct{}

// NewScanner creates a new Scanner instance.
func NewScanner() *Scanner {
	return &Scanner{}
}

// IsFree reports whether a TCP port can currently be bound on the host.
//
// The probe binds all interfaces (":port" rather than "127.0.0.1:port")
// because docker publishes ports on 0.0.0.0 — checking a narrower
// address space would produce false positives.
func (s *Scanner) IsFree(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	// Close immediately: the listener only existed to test availability.
	_ = listener.Close()
	return true
}

// CheckFree verifies that every port in the list is free, and returns
// a single error naming all occupied ports. Reporting them together
// saves the fix-one-rerun-find-the-next loop.
func (s *Scanner) CheckFree(ports []int) error {
	var busy []string
	for _, p := range ports {
		if !s.IsFree(p) {
			busy = append(busy, fmt.Sprintf("%d", p))
		}
	}
	if len(busy) > 0 {
		return fmt.Errorf("host port(s) already in use: %s", strings.Join(busy, ", "))
	}
	return nil
}
