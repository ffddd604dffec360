package cloudinit

import (
	"bytes"
	"fmt"

	"github.com/kdomanski/iso9660"

	"github.com/karkul/virt-create/internal/config"
	"github.com/karkul/virt-create/internal/naming"
)

// SeedVolumeLabel is the ISO9660 volume identifier the cloud-init NoCloud
// datasource discovers seed media by.
const SeedVolumeLabel = "cidata"

// Documents holds the generated seed document contents for one run.
type Documents struct {
	UserData string
	MetaData string
}

// GenerateDocuments generates both seed documents for a provisioning request.
func GenerateDocuments(req *config.Request, env *config.Environment) (*Documents, error) {
	userData, err := GenerateUserData(req, env)
	if err != nil {
		return nil, fmt.Errorf("failed to generate user-data: %w", err)
	}

	metaData, err := GenerateMetaData(req, env)
	if err != nil {
		return nil, fmt.Errorf("failed to generate meta-data: %w", err)
	}

	return &Documents{UserData: userData, MetaData: metaData}, nil
}

// GenerateISO packages the seed documents into an ISO9660 volume labeled for
// cloud-init discovery. Returns the ISO image as a byte slice ready to be
// written into the workspace.
func GenerateISO(docs *Documents) ([]byte, error) {
	if docs == nil {
		return nil, fmt.Errorf("seed documents cannot be nil")
	}

	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to create ISO writer: %w", err)
	}
	defer func() {
		// Temp-file cleanup; the image is already in memory by the time
		// this can fail
		_ = writer.Cleanup()
	}()

	if err := writer.AddFile(bytes.NewReader([]byte(docs.UserData)), naming.UserDataFileName); err != nil {
		return nil, fmt.Errorf("failed to add user-data: %w", err)
	}

	if err := writer.AddFile(bytes.NewReader([]byte(docs.MetaData)), naming.MetaDataFileName); err != nil {
		return nil, fmt.Errorf("failed to add meta-data: %w", err)
	}

	var buf bytes.Buffer
	if err := writer.WriteTo(&buf, SeedVolumeLabel); err != nil {
		return nil, fmt.Errorf("failed to write ISO image: %w", err)
	}

	return buf.Bytes(), nil
}
