package vm

import (
	"context"
	"fmt"
	"sync"

	"github.com/digitalocean/go-libvirt"
)

// mockLibvirtClient is a mock implementation of the libvirtClient interface
// for testing.
type mockLibvirtClient struct {
	mu sync.Mutex

	// Configurable behavior
	domainLookupByNameFunc      func(name string) (libvirt.Domain, error)
	domainDefineXMLFunc         func(xml string) (libvirt.Domain, error)
	domainCreateFunc            func(dom libvirt.Domain) error
	domainGetStateFunc          func(dom libvirt.Domain, flags uint32) (int32, int32, error)
	domainGetInfoFunc           func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)
	domainShutdownFunc          func(dom libvirt.Domain) error
	domainDestroyFunc           func(dom libvirt.Domain) error
	domainUndefineFunc          func(dom libvirt.Domain) error
	domainUpdateDeviceFunc      func(dom libvirt.Domain, xml string, flags libvirt.DomainDeviceModifyFlags) error
	connectListAllDomainsFunc   func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	domainGetMetadataFunc       func(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error)

	setMetadataErr error

	// Call tracking
	lookupCalls       []string
	defineCalls       []string
	createCalls       []libvirt.Domain
	shutdownCalls     []libvirt.Domain
	destroyCalls      []libvirt.Domain
	undefineCalls     []libvirt.Domain
	updateDeviceCalls []string
	setMetadataCalls  []string
}

// newMockLibvirtClient creates a mock with defaults simulating the common
// first-run path: no pre-existing domain, every operation succeeds.
func newMockLibvirtClient() *mockLibvirtClient {
	m := &mockLibvirtClient{}

	m.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		// Once defined, the domain is findable (rollback relies on this)
		if len(m.defineCalls) > 0 {
			return libvirt.Domain{Name: name}, nil
		}
		return libvirt.Domain{}, fmt.Errorf("domain not found: %s", name)
	}

	m.domainDefineXMLFunc = func(xml string) (libvirt.Domain, error) {
		return libvirt.Domain{Name: "test-vm"}, nil
	}

	m.domainCreateFunc = func(dom libvirt.Domain) error { return nil }

	m.domainGetStateFunc = func(dom libvirt.Domain, flags uint32) (int32, int32, error) {
		return 1, 0, nil // VIR_DOMAIN_RUNNING
	}

	m.domainGetInfoFunc = func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
		return 1, 2097152, 2097152, 2, 0, nil // 2GiB in KiB, 2 vcpus
	}

	m.domainShutdownFunc = func(dom libvirt.Domain) error { return nil }
	m.domainDestroyFunc = func(dom libvirt.Domain) error { return nil }
	m.domainUndefineFunc = func(dom libvirt.Domain) error { return nil }

	m.domainUpdateDeviceFunc = func(dom libvirt.Domain, xml string, flags libvirt.DomainDeviceModifyFlags) error {
		return nil
	}

	m.connectListAllDomainsFunc = func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
		return nil, 0, nil
	}

	m.domainGetMetadataFunc = func(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error) {
		return "", fmt.Errorf("metadata not found")
	}

	return m
}

func (m *mockLibvirtClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	m.lookupCalls = append(m.lookupCalls, name)
	m.mu.Unlock()
	return m.domainLookupByNameFunc(name)
}

func (m *mockLibvirtClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	m.defineCalls = append(m.defineCalls, xml)
	m.mu.Unlock()
	return m.domainDefineXMLFunc(xml)
}

func (m *mockLibvirtClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	m.createCalls = append(m.createCalls, dom)
	m.mu.Unlock()
	return m.domainCreateFunc(dom)
}

func (m *mockLibvirtClient) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	return m.domainGetStateFunc(dom, flags)
}

func (m *mockLibvirtClient) DomainGetInfo(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
	return m.domainGetInfoFunc(dom)
}

func (m *mockLibvirtClient) DomainShutdown(dom libvirt.Domain) error {
	m.mu.Lock()
	m.shutdownCalls = append(m.shutdownCalls, dom)
	m.mu.Unlock()
	return m.domainShutdownFunc(dom)
}

func (m *mockLibvirtClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	m.destroyCalls = append(m.destroyCalls, dom)
	m.mu.Unlock()
	return m.domainDestroyFunc(dom)
}

func (m *mockLibvirtClient) DomainUndefine(dom libvirt.Domain) error {
	m.mu.Lock()
	m.undefineCalls = append(m.undefineCalls, dom)
	m.mu.Unlock()
	return m.domainUndefineFunc(dom)
}

func (m *mockLibvirtClient) DomainUpdateDeviceFlags(dom libvirt.Domain, xml string, flags libvirt.DomainDeviceModifyFlags) error {
	m.mu.Lock()
	m.updateDeviceCalls = append(m.updateDeviceCalls, xml)
	m.mu.Unlock()
	return m.domainUpdateDeviceFunc(dom, xml, flags)
}

func (m *mockLibvirtClient) DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error {
	m.mu.Lock()
	if len(metadata) > 0 {
		m.setMetadataCalls = append(m.setMetadataCalls, metadata[0])
	}
	m.mu.Unlock()
	return m.setMetadataErr
}

func (m *mockLibvirtClient) DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error) {
	return m.domainGetMetadataFunc(dom, typ, uri, flags)
}

func (m *mockLibvirtClient) ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	return m.connectListAllDomainsFunc(needResults, flags)
}

// mockWorkspace is an in-memory workspaceManager.
type mockWorkspace struct {
	base string

	recreated    []string
	docsWritten  []string
	isosWritten  []string
	seedsRemoved []string
	deleted      []string

	recreateErr   error
	writeDocsErr  error
	writeISOErr   error
	removeSeedErr error
	deleteErr     error
}

func newMockWorkspace() *mockWorkspace {
	return &mockWorkspace{base: "/ws"}
}

func (m *mockWorkspace) Path(vmName string) string        { return m.base + "/" + vmName }
func (m *mockWorkspace) DiskPath(vmName string) string    { return m.Path(vmName) + "/disk.qcow2" }
func (m *mockWorkspace) SeedISOPath(vmName string) string { return m.Path(vmName) + "/cidata.iso" }
func (m *mockWorkspace) LogPath(vmName string) string     { return m.Path(vmName) + "/provision.log" }

func (m *mockWorkspace) Exists(vmName string) (bool, error) {
	for _, n := range m.recreated {
		if n == vmName {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockWorkspace) Recreate(vmName string) error {
	if m.recreateErr != nil {
		return m.recreateErr
	}
	m.recreated = append(m.recreated, vmName)
	return nil
}

func (m *mockWorkspace) WriteDocuments(vmName, userData, metaData string) error {
	if m.writeDocsErr != nil {
		return m.writeDocsErr
	}
	m.docsWritten = append(m.docsWritten, vmName)
	return nil
}

func (m *mockWorkspace) WriteSeedISO(vmName string, isoData []byte) error {
	if m.writeISOErr != nil {
		return m.writeISOErr
	}
	m.isosWritten = append(m.isosWritten, vmName)
	return nil
}

func (m *mockWorkspace) RemoveSeedArtifacts(vmName string) error {
	if m.removeSeedErr != nil {
		return m.removeSeedErr
	}
	m.seedsRemoved = append(m.seedsRemoved, vmName)
	return nil
}

func (m *mockWorkspace) Delete(vmName string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, vmName)
	return nil
}

// mockBuilder is an imageBuilder that records calls.
type mockBuilder struct {
	disksCreated  []string
	basesImported []string

	createErr error
	importErr error
}

func (m *mockBuilder) CreateDisk(diskPath string, sizeGB int) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.disksCreated = append(m.disksCreated, fmt.Sprintf("%s:%d", diskPath, sizeGB))
	return nil
}

func (m *mockBuilder) ImportBase(basePath, diskPath string) error {
	if m.importErr != nil {
		return m.importErr
	}
	m.basesImported = append(m.basesImported, basePath)
	return nil
}

// mockWaiter is a reachabilityWaiter with a fixed outcome.
type mockWaiter struct {
	attempts int
	err      error
	called   bool
}

func (m *mockWaiter) Wait(_ context.Context, _ string) (int, error) {
	m.called = true
	return m.attempts, m.err
}

// staticConfirmer answers with a fixed decision.
type staticConfirmer struct {
	answer bool
	err    error
	called bool
}

func (s *staticConfirmer) Confirm(string) (bool, error) {
	s.called = true
	return s.answer, s.err
}
