// Package metadata persists the provisioning record in libvirt's custom
// domain metadata. The record travels with the domain itself, so `list` can
// show what a VM was provisioned with and no external state file is needed.
package metadata

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"

	"github.com/karkul/virt-create/internal/config"
)

const (
	// Namespace is the XML namespace for virt-create metadata.
	Namespace = "https://github.com/karkul/virt-create/record"

	// Key is the metadata key under which records are stored.
	Key = "virt-create-record"
)

// Record captures what a VM was provisioned with and when.
type Record struct {
	Name          string    `yaml:"name"`
	MemoryMB      int       `yaml:"memory_mb"`
	VCPUs         int       `yaml:"vcpus"`
	DiskGB        int       `yaml:"disk_gb"`
	IP            string    `yaml:"ip"`
	Workspace     string    `yaml:"workspace"`
	ProvisionedAt time.Time `yaml:"provisioned_at"`
}

// NewRecord builds a Record from a provisioning request.
func NewRecord(req *config.Request, workspacePath string) *Record {
	return &Record{
		Name:          req.Name,
		MemoryMB:      req.MemoryMB,
		VCPUs:         req.VCPUs,
		DiskGB:        req.DiskGB,
		IP:            req.IP,
		Workspace:     workspacePath,
		ProvisionedAt: time.Now().UTC(),
	}
}

// recordXML wraps the YAML-serialized record in a namespaced XML element,
// the shape libvirt stores custom metadata in. YAML keeps the payload
// readable when inspecting domain XML by hand.
type recordXML struct {
	XMLName xml.Name `xml:"record"`
	Xmlns   string   `xml:"xmlns,attr"`
	YAML    string   `xml:",innerxml"`
}

// metadataClient is the slice of libvirt operations this package needs.
type metadataClient interface {
	DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error)
}

// Store saves the record to the domain's metadata, replacing any previous
// record.
func Store(l metadataClient, domain libvirt.Domain, rec *Record) error {
	yamlData, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record to YAML: %w", err)
	}

	xmlData, err := xml.MarshalIndent(recordXML{Xmlns: Namespace, YAML: string(yamlData)}, "  ", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record to XML: %w", err)
	}

	err = l.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{string(xmlData)},
		libvirt.OptString{Key},
		libvirt.OptString{Namespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return fmt.Errorf("failed to set domain metadata: %w", err)
	}

	return nil
}

// Load retrieves the record from the domain's metadata. Domains provisioned
// by other tools have no record; callers treat that error as "unknown".
func Load(l metadataClient, domain libvirt.Domain) (*Record, error) {
	xmlStr, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get domain metadata: %w", err)
	}

	var wrapped recordXML
	if err := xml.Unmarshal([]byte(xmlStr), &wrapped); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}

	var rec Record
	if err := yaml.Unmarshal([]byte(wrapped.YAML), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record YAML: %w", err)
	}

	return &rec, nil
}
