// Package privacy provides helpers for keeping personally identifiable
// information out of logs and audit trails.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
)

// Pseudonym returns a short, stable pseudonym for a patient reference so log
// lines can be correlated without carrying the reference itself.
func Pseudonym(ref string) string {
	if ref == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ref))
	return "p:" + hex.EncodeToString(sum[:6])
}

// AnonymizeIP truncates an IP address to remove the host-identifying portion.
//
// IPv4 addresses lose the last octet (/24); IPv6 addresses keep only the /48
// prefix. The result cannot identify a specific individual.
//
// Returns "invalid" for unparseable addresses and "unknown" for empty input.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}
