package vm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/karkul/virt-create/internal/config"
	"github.com/karkul/virt-create/internal/virt"
	"github.com/karkul/virt-create/internal/workspace"
)

const (
	// shutdownTimeout is how long to wait for graceful shutdown before
	// force-stopping.
	shutdownTimeout = 5 * time.Second

	// Domain states (libvirt VIR_DOMAIN_* constants)
	domainStateRunning = 1
)

// Destroy destroys a VM by name: graceful shutdown attempt, force stop,
// undefine, and workspace removal.
//
// Returns an error if the VM does not exist or a libvirt operation fails;
// workspace removal failures are surfaced too since leftover disks silently
// eat storage.
func Destroy(ctx context.Context, vmName string, env *config.Environment) error {
	log.Printf("Connecting to libvirt...")
	client, err := virt.ConnectWithContext(ctx, env.LibvirtSocket, 0)
	if err != nil {
		return fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("Warning: failed to close libvirt connection: %v", err)
		}
	}()

	ws := workspace.NewManager(env.StorageBase)

	return destroyWithDeps(ctx, vmName, client.Libvirt(), ws, time.Sleep)
}

// destroyWithDeps destroys a VM with injected dependencies. The sleep
// function is injectable so tests do not wait out the shutdown grace
// period.
func destroyWithDeps(_ context.Context, vmName string, lv libvirtClient, ws workspaceManager, sleep func(time.Duration)) error {
	domain, err := lv.DomainLookupByName(vmName)
	if err != nil {
		return fmt.Errorf("VM '%s' not found: %w", vmName, err)
	}

	state, _, err := lv.DomainGetState(domain, 0)
	if err != nil {
		return fmt.Errorf("failed to get domain state: %w", err)
	}

	if state == domainStateRunning {
		log.Printf("Shutting down VM '%s'...", vmName)
		if err := lv.DomainShutdown(domain); err != nil {
			log.Printf("Note: graceful shutdown failed, will force stop: %v", err)
		}

		// Give the guest a moment before pulling the plug
		deadline := time.Now().Add(shutdownTimeout)
		for time.Now().Before(deadline) {
			state, _, err = lv.DomainGetState(domain, 0)
			if err != nil || state != domainStateRunning {
				break
			}
			sleep(time.Second)
		}

		if state == domainStateRunning {
			log.Printf("Force stopping VM '%s'...", vmName)
			if err := lv.DomainDestroy(domain); err != nil {
				return fmt.Errorf("failed to force stop domain: %w", err)
			}
		}
	}

	log.Printf("Undefining domain '%s'...", vmName)
	if err := lv.DomainUndefine(domain); err != nil {
		return fmt.Errorf("failed to undefine domain: %w", err)
	}

	log.Printf("Removing workspace...")
	if err := ws.Delete(vmName); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}

	log.Printf("VM '%s' destroyed", vmName)
	return nil
}
