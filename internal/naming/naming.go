// Package naming provides infrastructure-level naming and address derivation
// rules: the /24 network addresses computed from a guest IP, deterministic
// MAC addresses, and the artifact names inside a VM workspace.
//
// These rules are deployment-independent and shared by the cloud-init
// generator, the domain XML builder, and the workspace manager.
package naming

import (
	"fmt"
	"net"
)

// Workspace artifact file names. Every provisioning run produces exactly
// these files inside the per-VM directory.
const (
	DiskFileName     = "disk.qcow2"
	SeedISOFileName  = "cidata.iso"
	UserDataFileName = "user-data"
	MetaDataFileName = "meta-data"
	LogFileName      = "provision.log"
)

// parseIPv4 parses s as an IPv4 address and returns its 4-byte form.
func parseIPv4(s string) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", s)
	}

	ipv4 := ip.To4()
	if ipv4 == nil {
		return nil, fmt.Errorf("not an IPv4 address: %s", s)
	}

	return ipv4, nil
}

// NetworkFromIP returns the /24 network address for the guest IP.
// The subnet is assumed to be a /24: the network is the first three
// octets with a zero final octet.
//
// Example: 192.168.122.50 → 192.168.122.0
func NetworkFromIP(ip string) (string, error) {
	ipv4, err := parseIPv4(ip)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d.%d.0", ipv4[0], ipv4[1], ipv4[2]), nil
}

// BroadcastFromIP returns the /24 broadcast address for the guest IP.
//
// Example: 192.168.122.50 → 192.168.122.255
func BroadcastFromIP(ip string) (string, error) {
	ipv4, err := parseIPv4(ip)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d.%d.255", ipv4[0], ipv4[1], ipv4[2]), nil
}

// MACFromIP calculates a deterministic MAC address from an IP address
// using the locally administered be:ef: prefix.
//
// Example: IP 10.55.22.22 → MAC be:ef:0a:37:16:16
func MACFromIP(ip string) (string, error) {
	ipv4, err := parseIPv4(ip)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("be:ef:%02x:%02x:%02x:%02x",
		ipv4[0], ipv4[1], ipv4[2], ipv4[3]), nil
}

// InterfaceNameFromIP calculates a deterministic tap interface name from an
// IP address. Format: vm{hex_octets} (10 chars, within the Linux 15-char
// limit).
//
// Example: IP 10.55.22.22 → vm0a371616
func InterfaceNameFromIP(ip string) (string, error) {
	ipv4, err := parseIPv4(ip)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("vm%02x%02x%02x%02x",
		ipv4[0], ipv4[1], ipv4[2], ipv4[3]), nil
}
