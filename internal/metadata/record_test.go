package metadata

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/karkul/virt-create/internal/config"
)

// mockMetadataClient stores metadata in memory keyed by namespace URI.
type mockMetadataClient struct {
	stored map[string]string
	setErr error
	getErr error
}

func newMockMetadataClient() *mockMetadataClient {
	return &mockMetadataClient{stored: make(map[string]string)}
}

func (m *mockMetadataClient) DomainSetMetadata(_ libvirt.Domain, _ int32, metadata libvirt.OptString, _ libvirt.OptString, uri libvirt.OptString, _ libvirt.DomainModificationImpact) error {
	if m.setErr != nil {
		return m.setErr
	}
	if len(uri) > 0 && len(metadata) > 0 {
		m.stored[uri[0]] = metadata[0]
	}
	return nil
}

func (m *mockMetadataClient) DomainGetMetadata(_ libvirt.Domain, _ int32, uri libvirt.OptString, _ libvirt.DomainModificationImpact) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	if len(uri) == 0 {
		return "", fmt.Errorf("no uri")
	}
	data, ok := m.stored[uri[0]]
	if !ok {
		return "", fmt.Errorf("metadata not found")
	}
	return data, nil
}

func testRecord() *Record {
	req := &config.Request{
		Name:     "web01",
		MemoryMB: 2048,
		VCPUs:    2,
		DiskGB:   20,
		IP:       "192.168.122.50",
	}
	return NewRecord(req, "/var/lib/libvirt/images/web01")
}

func TestNewRecord(t *testing.T) {
	rec := testRecord()

	if rec.Name != "web01" || rec.MemoryMB != 2048 || rec.VCPUs != 2 || rec.DiskGB != 20 {
		t.Errorf("record does not match request: %+v", rec)
	}
	if rec.Workspace != "/var/lib/libvirt/images/web01" {
		t.Errorf("unexpected workspace: %q", rec.Workspace)
	}
	if time.Since(rec.ProvisionedAt) > time.Minute {
		t.Errorf("provisioned_at should be recent, got %v", rec.ProvisionedAt)
	}
}

func TestStoreAndLoad(t *testing.T) {
	client := newMockMetadataClient()
	domain := libvirt.Domain{Name: "web01"}
	rec := testRecord()

	if err := Store(client, domain, rec); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// Stored payload is namespaced XML wrapping YAML
	raw := client.stored[Namespace]
	if !strings.Contains(raw, Namespace) {
		t.Errorf("stored metadata missing namespace: %q", raw)
	}
	if !strings.Contains(raw, "name: web01") {
		t.Errorf("stored metadata missing YAML payload: %q", raw)
	}

	loaded, err := Load(client, domain)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Name != rec.Name || loaded.IP != rec.IP || loaded.MemoryMB != rec.MemoryMB {
		t.Errorf("loaded record differs:\n got %+v\nwant %+v", loaded, rec)
	}
	if !loaded.ProvisionedAt.Equal(rec.ProvisionedAt) {
		t.Errorf("timestamp did not round-trip: got %v, want %v", loaded.ProvisionedAt, rec.ProvisionedAt)
	}
}

func TestLoadWithoutRecord(t *testing.T) {
	client := newMockMetadataClient()

	if _, err := Load(client, libvirt.Domain{Name: "foreign-vm"}); err == nil {
		t.Error("expected error for domain without a record")
	}
}

func TestStoreFailure(t *testing.T) {
	client := newMockMetadataClient()
	client.setErr = fmt.Errorf("permission denied")

	err := Store(client, libvirt.Domain{Name: "web01"}, testRecord())
	if err == nil || !strings.Contains(err.Error(), "failed to set domain metadata") {
		t.Errorf("expected wrapped set error, got %v", err)
	}
}
