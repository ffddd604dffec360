// Package virt provides the libvirt client wrapper and domain XML
// generation for provisioning.
//
// The Client type manages the connection to the local libvirt daemon over
// its Unix socket (github.com/digitalocean/go-libvirt RPC, no CGo). Domain
// XML is generated with libvirt.org/go/libvirtxml from the provisioning
// request and the deployment environment.
//
// Consumer-Side Interfaces:
//
// This package does not define interfaces. Consumers (internal/vm,
// internal/metadata) declare their own interfaces with only the libvirt
// operations they need; *libvirt.Libvirt satisfies them implicitly, which
// keeps mocking local to the tests that need it.
package virt
