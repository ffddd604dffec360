// Package vm provides the high-level provisioning workflow: Provision,
// Destroy, and List operate on whole VMs, delegating to the workspace,
// image, cloudinit, virt, probe, and metadata packages.
//
// Dependencies are injected through consumer-side interfaces declared in
// interfaces.go, satisfied by the concrete types in production and by the
// mocks in mocks_test.go under test.
package vm
