package types

import "time"

// ExtensionStatus is the review state of a catalog extension
type ExtensionStatus string

const (
	ExtensionApproved   ExtensionStatus = "APPROVED"
	ExtensionPending    ExtensionStatus = "PENDING"
	ExtensionRejected   ExtensionStatus = "REJECTED"
	ExtensionDeprecated ExtensionStatus = "DEPRECATED"
)

// Extension is a catalog entry installable on instances
type Extension struct {
	ID          string          `json:"id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Status      ExtensionStatus `json:"status"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ExtensionVersion is one published version of an extension
type ExtensionVersion struct {
	ExtensionID string    `json:"extensionId"`
	Version     string    `json:"version"`
	PublishedAt time.Time `json:"publishedAt"`
}

// ExtensionInstallation records one extension installed on an instance
type ExtensionInstallation struct {
	ID          string    `json:"id"`
	InstanceID  string    `json:"instanceId"`
	Slug        string    `json:"slug"`
	Version     string    `json:"version,omitempty"`
	InstalledBy string    `json:"installedBy"`
	InstalledAt time.Time `json:"installedAt"`
}

// DeploymentTemplate is a reusable starting point for the deployment wizard
type DeploymentTemplate struct {
	ID                      string    `json:"id"`
	Name                    string    `json:"name"`
	Slug                    string    `json:"slug"`
	Category                string    `json:"category,omitempty"`
	Description             string    `json:"description,omitempty"`
	Extensions              []string  `json:"extensions"`
	ProviderRecommendations []string  `json:"providerRecommendations"`
	YAMLContent             string    `json:"yamlContent"`
	IsOfficial              bool      `json:"isOfficial"`
	CreatedBy               string    `json:"createdBy"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
}
