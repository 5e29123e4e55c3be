// Package scan runs port scans through the external nmap tool and turns
// the raw results into stored XML artifacts.
package scan

import (
	"time"
)

// Result contains the complete results of a port scan job.
type Result struct {
	// Target is the network the scan covered
	Target string
	// Hosts contains all scanned hosts and their findings
	Hosts []Host
	// Stats contains summary statistics about the scan
	Stats HostStats
	// StartTime is when the scan started
	StartTime time.Time
	// EndTime is when the scan completed
	EndTime time.Time
	// Duration is how long the scan took
	Duration time.Duration
}

// NewResult creates a result with the current time as start time.
func NewResult(target string) *Result {
	return &Result{
		Target:    target,
		StartTime: time.Now(),
		Hosts:     make([]Host, 0),
	}
}

// Complete marks the scan as complete and calculates duration.
func (r *Result) Complete() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// Host represents a scanned host and its findings.
type Host struct {
	// Address is the IP address of the scanned host
	Address string
	// Hostname is the reverse name nmap reported, if any
	Hostname string
	// Status indicates whether the host is "up" or "down"
	Status string
	// Ports contains information about all scanned ports
	Ports []Port
}

// Port represents the scan results for a single port.
type Port struct {
	// Number is the port number (1-65535)
	Number uint16
	// Protocol is the transport protocol ("tcp" or "udp")
	Protocol string
	// State indicates whether the port is "open", "closed", or "filtered"
	State string
	// Service is the name of the detected service, if any
	Service string
	// Version is the version of the detected service, if available
	Version string
	// Product is the product name of the detected service, if available
	Product string
}

// HostStats contains summary statistics about a scan.
type HostStats struct {
	// Up is the number of hosts that were up
	Up int
	// Down is the number of hosts that were down
	Down int
	// Total is the total number of hosts scanned
	Total int
}
