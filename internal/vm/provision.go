package vm

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/digitalocean/go-libvirt"

	"github.com/karkul/virt-create/internal/cloudinit"
	"github.com/karkul/virt-create/internal/config"
	"github.com/karkul/virt-create/internal/image"
	"github.com/karkul/virt-create/internal/metadata"
	"github.com/karkul/virt-create/internal/probe"
	"github.com/karkul/virt-create/internal/virt"
	"github.com/karkul/virt-create/internal/workspace"
)

// ErrAborted is returned when the user declines to overwrite an existing
// domain. No destructive action has happened when it is returned.
var ErrAborted = errors.New("provisioning aborted: existing VM not overwritten")

// Provision provisions a VM from a request.
//
// This orchestrates the entire workflow:
//  1. Check for an existing domain; confirm overwrite via the injected
//     strategy and reset the old domain if affirmed
//  2. Recreate the workspace directory
//  3. Generate cloud-init documents and write them to the workspace
//  4. Allocate the disk and import the base template image
//  5. Package and write the seed ISO
//  6. Define and start the domain (import mode)
//  7. Poll the assigned IP until the guest answers
//  8. Eject the seed media and delete the local seed artifacts
//
// On failure before the domain starts, partially created resources are
// rolled back. On reachability exhaustion nothing is cleaned up: the seed
// media and documents stay in place for debugging.
func Provision(ctx context.Context, req *config.Request, env *config.Environment, confirm Confirmer) error {
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
	builder := image.NewBuilder(ws.LogPath(req.Name))
	waiter := probe.NewWaiter(probe.NewPingProber(0), env.PollInterval, env.PollAttempts)

	return provisionWithDeps(ctx, req, env, client.Libvirt(), ws, builder, waiter, confirm)
}

// provisionWithDeps provisions a VM with injected dependencies. This allows
// for testing by accepting interfaces instead of concrete types.
func provisionWithDeps(ctx context.Context, req *config.Request, env *config.Environment,
	lv libvirtClient, ws workspaceManager, builder imageBuilder,
	waiter reachabilityWaiter, confirm Confirmer) error {

	// Step 1: conflict check. Decline must abort before anything is
	// touched.
	log.Printf("Checking for existing VM '%s'...", req.Name)
	existing, exists := lookupDomain(lv, req.Name)
	if exists {
		ok, err := confirm.Confirm(fmt.Sprintf("VM '%s' already exists. Overwrite it", req.Name))
		if err != nil {
			return fmt.Errorf("overwrite confirmation failed: %w", err)
		}
		if !ok {
			return ErrAborted
		}

		log.Printf("Resetting existing domain '%s'...", req.Name)
		if err := resetDomain(lv, existing); err != nil {
			return err
		}
	}

	// State tracking for rollback. Once the domain has started, failure
	// handling changes: an unreachable guest is left intact.
	var (
		workspaceCreated bool
		domainDefined    bool
		installed        bool
		provisionErr     error
	)
	defer func() {
		if provisionErr != nil && !installed {
			rollback(lv, ws, req.Name, domainDefined, workspaceCreated)
		}
	}()

	// Step 2: fresh workspace
	log.Printf("Creating workspace %s...", ws.Path(req.Name))
	if provisionErr = ws.Recreate(req.Name); provisionErr != nil {
		return fmt.Errorf("failed to create workspace: %w", provisionErr)
	}
	workspaceCreated = true

	// Step 3: cloud-init documents
	log.Printf("Generating cloud-init documents...")
	docs, err := cloudinit.GenerateDocuments(req, env)
	if err != nil {
		provisionErr = err
		return fmt.Errorf("failed to generate cloud-init documents: %w", err)
	}
	if provisionErr = ws.WriteDocuments(req.Name, docs.UserData, docs.MetaData); provisionErr != nil {
		return fmt.Errorf("failed to write cloud-init documents: %w", provisionErr)
	}

	// Step 4: disk image
	diskPath := ws.DiskPath(req.Name)
	log.Printf("Creating disk image (%dGB)...", req.DiskGB)
	if provisionErr = builder.CreateDisk(diskPath, req.DiskGB); provisionErr != nil {
		return fmt.Errorf("failed to create disk: %w", provisionErr)
	}

	log.Printf("Importing base image %s...", env.BaseImage)
	if provisionErr = builder.ImportBase(env.BaseImage, diskPath); provisionErr != nil {
		return fmt.Errorf("failed to import base image: %w", provisionErr)
	}

	// Step 5: seed ISO
	log.Printf("Packaging cloud-init seed ISO...")
	isoData, err := cloudinit.GenerateISO(docs)
	if err != nil {
		provisionErr = err
		return fmt.Errorf("failed to generate seed ISO: %w", err)
	}
	if provisionErr = ws.WriteSeedISO(req.Name, isoData); provisionErr != nil {
		return fmt.Errorf("failed to write seed ISO: %w", provisionErr)
	}

	// Step 6: define and start the domain
	log.Printf("Generating domain XML...")
	domainXML, err := virt.GenerateDomainXML(req, env, diskPath, ws.SeedISOPath(req.Name))
	if err != nil {
		provisionErr = err
		return fmt.Errorf("failed to generate domain XML: %w", err)
	}

	log.Printf("Defining domain...")
	var domain libvirt.Domain
	domain, provisionErr = lv.DomainDefineXML(domainXML)
	if provisionErr != nil {
		return fmt.Errorf("failed to define domain: %w", provisionErr)
	}
	domainDefined = true

	log.Printf("Starting VM...")
	if provisionErr = lv.DomainCreate(domain); provisionErr != nil {
		return fmt.Errorf("failed to start domain: %w", provisionErr)
	}
	installed = true

	// Record what this domain was provisioned with. Advisory: a failure
	// here does not fail the run.
	if err := metadata.Store(lv, domain, metadata.NewRecord(req, ws.Path(req.Name))); err != nil {
		log.Printf("Warning: failed to store provisioning record: %v", err)
	}

	// Step 7: reachability poll. On exhaustion everything is left in
	// place, seed media included.
	log.Printf("Waiting for %s to become reachable...", req.IP)
	attempts, err := waiter.Wait(ctx, req.IP)
	if err != nil {
		if errors.Is(err, probe.ErrExhausted) {
			return fmt.Errorf("VM '%s' started but never became reachable: %w", req.Name, err)
		}
		return fmt.Errorf("reachability wait failed: %w", err)
	}
	log.Printf("Guest answered on probe attempt %d", attempts)

	// Step 8: post-install cleanup
	log.Printf("Ejecting seed media...")
	ejectXML, err := virt.GenerateEjectedSeedXML()
	if err != nil {
		return fmt.Errorf("failed to generate eject XML: %w", err)
	}
	flags := libvirt.DomainDeviceModifyLive | libvirt.DomainDeviceModifyConfig
	if err := lv.DomainUpdateDeviceFlags(domain, ejectXML, flags); err != nil {
		return fmt.Errorf("failed to eject seed media: %w", err)
	}

	log.Printf("Removing local seed artifacts...")
	if err := ws.RemoveSeedArtifacts(req.Name); err != nil {
		return fmt.Errorf("failed to remove seed artifacts: %w", err)
	}

	log.Printf("VM '%s' provisioned successfully (%s)", req.Name, req.IP)
	return nil
}

// lookupDomain checks for an existing domain. go-libvirt reports "not
// found" as an error, which is the common first-run path.
func lookupDomain(lv libvirtClient, name string) (libvirt.Domain, bool) {
	domain, err := lv.DomainLookupByName(name)
	if err != nil {
		return libvirt.Domain{}, false
	}
	return domain, true
}

// resetDomain force-stops and undefines a known-existing domain. A destroy
// failure is expected when the domain is not running and is only logged;
// an undefine failure is a genuine hypervisor fault and is surfaced.
func resetDomain(lv libvirtClient, domain libvirt.Domain) error {
	if err := lv.DomainDestroy(domain); err != nil {
		log.Printf("Note: domain '%s' was not running: %v", domain.Name, err)
	}

	if err := lv.DomainUndefine(domain); err != nil {
		return fmt.Errorf("failed to undefine existing domain '%s': %w", domain.Name, err)
	}

	return nil
}

// rollback cleans up partially created resources after a failed run. Best
// effort: errors are logged, never returned.
func rollback(lv libvirtClient, ws workspaceManager, vmName string, domainDefined, workspaceCreated bool) {
	log.Printf("Cleaning up after failed provisioning...")

	if domainDefined && lv != nil {
		domain, err := lv.DomainLookupByName(vmName)
		if err != nil {
			log.Printf("Warning: failed to lookup domain for cleanup: %v", err)
		} else {
			if err := lv.DomainDestroy(domain); err != nil {
				log.Printf("Note: domain was not running: %v", err)
			}
			if err := lv.DomainUndefine(domain); err != nil {
				log.Printf("Warning: failed to undefine domain: %v", err)
			}
		}
	}

	if workspaceCreated && ws != nil {
		if err := ws.Delete(vmName); err != nil {
			log.Printf("Warning: failed to delete workspace: %v", err)
		}
	}

	log.Printf("Cleanup complete")
}
