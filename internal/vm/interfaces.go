package vm

import (
	"context"

	"github.com/digitalocean/go-libvirt"
)

// libvirtClient defines the libvirt operations needed for provisioning.
//
// In production this is satisfied by *libvirt.Libvirt directly.
// In tests it is satisfied by mock implementations.
type libvirtClient interface {
	// DomainLookupByName looks up a domain by name
	DomainLookupByName(name string) (libvirt.Domain, error)

	// DomainDefineXML defines a domain from XML
	DomainDefineXML(xml string) (libvirt.Domain, error)

	// DomainCreate starts a domain
	DomainCreate(dom libvirt.Domain) error

	// DomainGetState gets the state of a domain
	DomainGetState(dom libvirt.Domain, flags uint32) (state int32, reason int32, err error)

	// DomainGetInfo gets resource details of a domain
	DomainGetInfo(dom libvirt.Domain) (state uint8, maxMem uint64, memory uint64, nrVirtCPU uint16, cpuTime uint64, err error)

	// DomainShutdown gracefully shuts down a domain
	DomainShutdown(dom libvirt.Domain) error

	// DomainDestroy force-stops a domain
	DomainDestroy(dom libvirt.Domain) error

	// DomainUndefine undefines a domain
	DomainUndefine(dom libvirt.Domain) error

	// DomainUpdateDeviceFlags updates a device on a domain; used to eject
	// the seed CD-ROM from the persistent configuration
	DomainUpdateDeviceFlags(dom libvirt.Domain, xml string, flags libvirt.DomainDeviceModifyFlags) error

	// DomainSetMetadata stores custom metadata on a domain
	DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error

	// DomainGetMetadata retrieves custom metadata from a domain
	DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error)

	// ConnectListAllDomains lists all domains (active and inactive)
	ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
}

// workspaceManager defines the workspace operations needed for
// provisioning.
//
// In production this is satisfied by *workspace.Manager.
type workspaceManager interface {
	Path(vmName string) string
	DiskPath(vmName string) string
	SeedISOPath(vmName string) string
	LogPath(vmName string) string
	Exists(vmName string) (bool, error)
	Recreate(vmName string) error
	WriteDocuments(vmName, userData, metaData string) error
	WriteSeedISO(vmName string, isoData []byte) error
	RemoveSeedArtifacts(vmName string) error
	Delete(vmName string) error
}

// imageBuilder defines the disk build operations needed for provisioning.
//
// In production this is satisfied by *image.Builder.
type imageBuilder interface {
	CreateDisk(diskPath string, sizeGB int) error
	ImportBase(basePath, diskPath string) error
}

// reachabilityWaiter runs the post-install polling loop.
//
// In production this is satisfied by *probe.Waiter.
type reachabilityWaiter interface {
	Wait(ctx context.Context, ip string) (int, error)
}
