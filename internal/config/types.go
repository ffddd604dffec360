package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultStorageBase is the default base directory for per-VM workspaces.
	DefaultStorageBase = "/var/lib/libvirt/images"

	// DefaultBaseImage is the template image imported into every new disk.
	DefaultBaseImage = "/var/lib/libvirt/images/templates/centos-base.qcow2"

	// DefaultPollInterval is the sleep between reachability probes.
	DefaultPollInterval = 60 * time.Second

	// DefaultPollAttempts is the probe cap before provisioning gives up.
	DefaultPollAttempts = 20
)

// Environment holds the deployment-environment constants the original tool
// hard-coded: storage layout, template image, network defaults, and the
// credentials injected into every guest. All fields have working defaults
// and can be overridden from a YAML file.
type Environment struct {
	StorageBase   string        `yaml:"storage_base,omitempty"`
	BaseImage     string        `yaml:"base_image,omitempty"`
	Bridge        string        `yaml:"bridge,omitempty"`
	Gateway       string        `yaml:"gateway,omitempty"`
	Netmask       string        `yaml:"netmask,omitempty"`
	DNSServers    []string      `yaml:"dns_servers,omitempty"`
	DomainSuffix  string        `yaml:"domain_suffix,omitempty"`
	LoginUser     string        `yaml:"login_user,omitempty"`
	AuthorizedKey string        `yaml:"authorized_key,omitempty"`
	LibvirtSocket string        `yaml:"libvirt_socket,omitempty"`
	PollInterval  time.Duration `yaml:"poll_interval,omitempty"`
	PollAttempts  int           `yaml:"poll_attempts,omitempty"`
}

// DefaultEnvironment returns the environment the tool assumes when no config
// file is supplied. The values reproduce the original deployment.
func DefaultEnvironment() *Environment {
	return &Environment{
		StorageBase:  DefaultStorageBase,
		BaseImage:    DefaultBaseImage,
		Bridge:       "br0",
		Gateway:      "192.168.122.1",
		Netmask:      "255.255.255.0",
		DNSServers:   []string{"192.168.122.1"},
		DomainSuffix: "lab.local",
		LoginUser:    "admin",
		PollInterval: DefaultPollInterval,
		PollAttempts: DefaultPollAttempts,
	}
}

// LoadEnvironment loads an Environment from a YAML file, applying defaults
// for any field the file omits.
func LoadEnvironment(path string) (*Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment file: %w", err)
	}

	env := DefaultEnvironment()
	if err := yaml.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("failed to parse environment YAML: %w", err)
	}

	env.applyDefaults()

	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	return env, nil
}

// applyDefaults fills zero-valued fields after unmarshalling. An explicit
// empty list in the file still counts as unset for DNS servers.
func (e *Environment) applyDefaults() {
	def := DefaultEnvironment()

	if e.StorageBase == "" {
		e.StorageBase = def.StorageBase
	}
	if e.BaseImage == "" {
		e.BaseImage = def.BaseImage
	}
	if e.Bridge == "" {
		e.Bridge = def.Bridge
	}
	if e.Gateway == "" {
		e.Gateway = def.Gateway
	}
	if e.Netmask == "" {
		e.Netmask = def.Netmask
	}
	if len(e.DNSServers) == 0 {
		e.DNSServers = def.DNSServers
	}
	if e.DomainSuffix == "" {
		e.DomainSuffix = def.DomainSuffix
	}
	if e.LoginUser == "" {
		e.LoginUser = def.LoginUser
	}
	if e.PollInterval <= 0 {
		e.PollInterval = def.PollInterval
	}
	if e.PollAttempts <= 0 {
		e.PollAttempts = def.PollAttempts
	}
}

// Validate checks the environment for errors. The authorized key, when set,
// must parse as an OpenSSH public key so a typo is caught before it ends up
// inside a guest that nobody can log in to.
func (e *Environment) Validate() error {
	if net.ParseIP(e.Gateway) == nil {
		return fmt.Errorf("invalid gateway IP address %q", e.Gateway)
	}

	mask := net.ParseIP(e.Netmask)
	if mask == nil || mask.To4() == nil {
		return fmt.Errorf("invalid netmask %q", e.Netmask)
	}

	for i, dns := range e.DNSServers {
		if net.ParseIP(dns) == nil {
			return fmt.Errorf("dns_servers[%d] is not a valid IP address: %q", i, dns)
		}
	}

	if e.AuthorizedKey != "" {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(e.AuthorizedKey)); err != nil {
			return fmt.Errorf("authorized_key is not a valid SSH public key: %w", err)
		}
	}

	return nil
}

// Request is the immutable provisioning request built from the five
// positional command line arguments.
type Request struct {
	Name     string
	MemoryMB int
	VCPUs    int
	DiskGB   int
	IP       string
}

// ParseRequest builds a Request from exactly five positional arguments in the
// order: name, memory (MiB), vcpus, disk size (GiB), IPv4 address.
func ParseRequest(args []string) (*Request, error) {
	if len(args) != 5 {
		return nil, fmt.Errorf("expected 5 arguments (name memory_mb vcpus disk_gb ip), got %d", len(args))
	}

	memoryMB, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("invalid memory value %q: %w", args[1], err)
	}

	vcpus, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, fmt.Errorf("invalid vcpus value %q: %w", args[2], err)
	}

	diskGB, err := strconv.Atoi(args[3])
	if err != nil {
		return nil, fmt.Errorf("invalid disk size value %q: %w", args[3], err)
	}

	req := &Request{
		Name:     strings.ToLower(strings.TrimSpace(args[0])),
		MemoryMB: memoryMB,
		VCPUs:    vcpus,
		DiskGB:   diskGB,
		IP:       strings.TrimSpace(args[4]),
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

// Validate checks the request fields. The name pattern matches libvirt
// domain naming requirements.
func (r *Request) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}

	namePattern := `^[a-z0-9][a-z0-9_-]*[a-z0-9]$`
	if len(r.Name) == 1 {
		namePattern = `^[a-z0-9]$`
	}
	matched, err := regexp.MatchString(namePattern, r.Name)
	if err != nil {
		return fmt.Errorf("name validation error: %w", err)
	}
	if !matched {
		return fmt.Errorf("name must start and end with alphanumeric characters and contain only alphanumeric, hyphens, or underscores, got %q", r.Name)
	}

	if r.MemoryMB <= 0 {
		return fmt.Errorf("memory_mb must be > 0, got %d", r.MemoryMB)
	}
	if r.VCPUs <= 0 {
		return fmt.Errorf("vcpus must be > 0, got %d", r.VCPUs)
	}
	if r.DiskGB <= 0 {
		return fmt.Errorf("disk_gb must be > 0, got %d", r.DiskGB)
	}

	ip := net.ParseIP(r.IP)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("invalid IPv4 address %q", r.IP)
	}

	return nil
}

// FQDN returns the guest's fully qualified name under the environment's
// domain suffix.
func (r *Request) FQDN(env *Environment) string {
	if env.DomainSuffix == "" {
		return r.Name
	}
	return fmt.Sprintf("%s.%s", r.Name, env.DomainSuffix)
}
