package vm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/digitalocean/go-libvirt"
)

// noSleep stands in for time.Sleep so the shutdown grace period does not
// slow the tests down.
func noSleep(time.Duration) {}

func TestDestroyRunningVM(t *testing.T) {
	lv := newMockLibvirtClient()
	lv.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		return libvirt.Domain{Name: name}, nil
	}

	// Running at first, shut off once shutdown was requested
	lv.domainGetStateFunc = func(dom libvirt.Domain, flags uint32) (int32, int32, error) {
		if len(lv.shutdownCalls) > 0 {
			return 5, 0, nil // VIR_DOMAIN_SHUTOFF
		}
		return 1, 0, nil
	}

	ws := newMockWorkspace()

	err := destroyWithDeps(context.Background(), "test-vm", lv, ws, noSleep)
	if err != nil {
		t.Fatalf("destroyWithDeps() error = %v", err)
	}

	if len(lv.shutdownCalls) != 1 {
		t.Errorf("shutdown calls = %d, want 1", len(lv.shutdownCalls))
	}
	// Graceful shutdown worked, no force stop needed
	if len(lv.destroyCalls) != 0 {
		t.Errorf("destroy calls = %d, want 0", len(lv.destroyCalls))
	}
	if len(lv.undefineCalls) != 1 {
		t.Errorf("undefine calls = %d, want 1", len(lv.undefineCalls))
	}
	if len(ws.deleted) != 1 || ws.deleted[0] != "test-vm" {
		t.Errorf("workspace deleted = %v, want [test-vm]", ws.deleted)
	}
}

func TestDestroyForceStopAfterTimeout(t *testing.T) {
	lv := newMockLibvirtClient()
	lv.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		return libvirt.Domain{Name: name}, nil
	}
	// Guest ignores the shutdown request entirely
	lv.domainGetStateFunc = func(dom libvirt.Domain, flags uint32) (int32, int32, error) {
		return 1, 0, nil
	}

	ws := newMockWorkspace()

	err := destroyWithDeps(context.Background(), "test-vm", lv, ws, noSleep)
	if err != nil {
		t.Fatalf("destroyWithDeps() error = %v", err)
	}

	if len(lv.destroyCalls) != 1 {
		t.Errorf("destroy calls = %d, want 1 (force stop)", len(lv.destroyCalls))
	}
	if len(lv.undefineCalls) != 1 {
		t.Errorf("undefine calls = %d, want 1", len(lv.undefineCalls))
	}
}

func TestDestroyStoppedVM(t *testing.T) {
	lv := newMockLibvirtClient()
	lv.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		return libvirt.Domain{Name: name}, nil
	}
	lv.domainGetStateFunc = func(dom libvirt.Domain, flags uint32) (int32, int32, error) {
		return 5, 0, nil // VIR_DOMAIN_SHUTOFF
	}

	ws := newMockWorkspace()

	err := destroyWithDeps(context.Background(), "test-vm", lv, ws, noSleep)
	if err != nil {
		t.Fatalf("destroyWithDeps() error = %v", err)
	}

	if len(lv.shutdownCalls) != 0 || len(lv.destroyCalls) != 0 {
		t.Error("stop was attempted on a domain that was not running")
	}
	if len(lv.undefineCalls) != 1 {
		t.Errorf("undefine calls = %d, want 1", len(lv.undefineCalls))
	}
}

func TestDestroyVMNotFound(t *testing.T) {
	lv := newMockLibvirtClient()
	ws := newMockWorkspace()

	err := destroyWithDeps(context.Background(), "no-such-vm", lv, ws, noSleep)
	if err == nil {
		t.Fatal("destroyWithDeps() error = nil, want not-found error")
	}
	if len(ws.deleted) != 0 {
		t.Error("workspace deleted for a VM that does not exist")
	}
}

func TestDestroyUndefineFailure(t *testing.T) {
	lv := newMockLibvirtClient()
	lv.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		return libvirt.Domain{Name: name}, nil
	}
	lv.domainGetStateFunc = func(dom libvirt.Domain, flags uint32) (int32, int32, error) {
		return 5, 0, nil
	}
	lv.domainUndefineFunc = func(dom libvirt.Domain) error {
		return fmt.Errorf("domain has snapshots")
	}

	ws := newMockWorkspace()

	err := destroyWithDeps(context.Background(), "test-vm", lv, ws, noSleep)
	if err == nil {
		t.Fatal("destroyWithDeps() error = nil, want undefine failure")
	}
	// Workspace removal must not happen while the domain still references it
	if len(ws.deleted) != 0 {
		t.Errorf("workspace deleted = %v, want none", ws.deleted)
	}
}
