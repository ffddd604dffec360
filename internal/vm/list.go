package vm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/karkul/virt-create/internal/config"
	"github.com/karkul/virt-create/internal/metadata"
	"github.com/karkul/virt-create/internal/virt"
)

// Info represents one VM in list output. IP and ProvisionedAt come from the
// stored provisioning record and are empty for domains this tool did not
// create.
type Info struct {
	Name          string    `yaml:"name" json:"name"`
	State         string    `yaml:"state" json:"state"`
	VCPUs         uint16    `yaml:"vcpus" json:"vcpus"`
	MemoryMB      uint64    `yaml:"memory_mb" json:"memory_mb"`
	IP            string    `yaml:"ip,omitempty" json:"ip,omitempty"`
	ProvisionedAt time.Time `yaml:"provisioned_at,omitempty" json:"provisioned_at,omitempty"`
}

// List lists all domains known to the hypervisor, running or stopped.
func List(ctx context.Context, env *config.Environment) ([]Info, error) {
	log.Printf("Connecting to libvirt...")
	client, err := virt.ConnectWithContext(ctx, env.LibvirtSocket, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("Warning: failed to close libvirt connection: %v", err)
		}
	}()

	return listWithDeps(ctx, client.Libvirt())
}

// listWithDeps lists VMs with injected dependencies.
func listWithDeps(_ context.Context, lv libvirtClient) ([]Info, error) {
	// NeedResults: 1 populates the slice; flags 0 means all domains
	domains, _, err := lv.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	vms := make([]Info, 0, len(domains))
	for _, domain := range domains {
		info, err := domainInfo(lv, domain)
		if err != nil {
			log.Printf("Warning: failed to get info for domain %s: %v", domain.Name, err)
			continue
		}
		vms = append(vms, info)
	}

	return vms, nil
}

// domainInfo collects details for a single domain, merging in the stored
// provisioning record when one exists.
func domainInfo(lv libvirtClient, domain libvirt.Domain) (Info, error) {
	state, _, err := lv.DomainGetState(domain, 0)
	if err != nil {
		return Info{}, fmt.Errorf("failed to get domain state: %w", err)
	}

	_, _, memory, nrVirtCPU, _, err := lv.DomainGetInfo(domain)
	if err != nil {
		return Info{}, fmt.Errorf("failed to get domain info: %w", err)
	}

	info := Info{
		Name:     domain.Name,
		State:    stateToString(state),
		VCPUs:    nrVirtCPU,
		MemoryMB: memory / 1024, // KiB → MiB
	}

	// Domains provisioned by other tools have no record
	if rec, err := metadata.Load(lv, domain); err == nil {
		info.IP = rec.IP
		info.ProvisionedAt = rec.ProvisionedAt
	}

	return info, nil
}

// stateToString converts a libvirt domain state to a human-readable string.
func stateToString(state int32) string {
	switch state {
	case 0:
		return "no state"
	case 1:
		return "running"
	case 2:
		return "blocked"
	case 3:
		return "paused"
	case 4:
		return "shutdown"
	case 5:
		return "shutoff"
	case 6:
		return "crashed"
	case 7:
		return "pmsuspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}
