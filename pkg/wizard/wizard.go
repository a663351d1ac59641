package wizard

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/roosthq/roost/pkg/instance"
	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

var slugRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Service exposes deployment templates and turns wizard submissions into
// instance registrations. The wizard steps themselves are client-driven;
// the Console only stores templates and validates the final submission.
type Service struct {
	store     storage.Store
	instances *instance.Service
	logger    zerolog.Logger
	nowFunc   func() time.Time
}

// NewService creates the wizard service
func NewService(store storage.Store, instances *instance.Service) *Service {
	return &Service{
		store:     store,
		instances: instances,
		logger:    log.WithComponent("wizard"),
		nowFunc:   time.Now,
	}
}

// yamlDeclaresName checks that the template body is parseable YAML with
// at least a non-empty top-level name field
func yamlDeclaresName(content string) error {
	var doc struct {
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return types.Validationf("yamlContent is not valid YAML: %v", err)
	}
	if strings.TrimSpace(doc.Name) == "" {
		return types.Validationf("yamlContent must declare a name field")
	}
	return nil
}

// ValidateTemplate checks a template definition
func ValidateTemplate(tpl *types.DeploymentTemplate) error {
	var details []string
	if tpl.Name == "" {
		details = append(details, "name must not be empty")
	}
	if !slugRegexp.MatchString(tpl.Slug) {
		details = append(details, "slug must match ^[a-z0-9][a-z0-9-]*$")
	}
	if len(tpl.Extensions) > types.MaxInstanceExtensions {
		details = append(details, fmt.Sprintf("extensions must not exceed %d entries", types.MaxInstanceExtensions))
	}
	for _, provider := range tpl.ProviderRecommendations {
		if !types.ValidProvider(types.Provider(provider)) {
			details = append(details, fmt.Sprintf("recommended provider %q is not supported", provider))
		}
	}
	if err := yamlDeclaresName(tpl.YAMLContent); err != nil {
		if ve, ok := types.IsValidation(err); ok {
			details = append(details, ve.Details...)
		}
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// CreateTemplate validates and stores a template
func (s *Service) CreateTemplate(tpl *types.DeploymentTemplate) error {
	if tpl.Slug == "" && tpl.Name != "" {
		tpl.Slug = strings.ToLower(strings.ReplaceAll(tpl.Name, " ", "-"))
	}
	if err := ValidateTemplate(tpl); err != nil {
		return err
	}
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	now := s.nowFunc()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now
	return s.store.CreateTemplate(tpl)
}

// Submission is the wizard's final deploy step
type Submission struct {
	TemplateID string         `json:"templateId"`
	Name       string         `json:"name"`
	Provider   types.Provider `json:"provider"`
	Region     string         `json:"region,omitempty"`
	TeamID     string         `json:"teamId,omitempty"`
	ConfigHash string         `json:"configHash,omitempty"`
	Extensions []string       `json:"extensions,omitempty"`
}

// validateSubmission checks the submission against its template
func validateSubmission(sub *Submission, tpl *types.DeploymentTemplate) error {
	var details []string
	if !instance.ValidName(sub.Name) {
		details = append(details, "name must match ^[a-z0-9][a-z0-9-]*$")
	}
	if !types.ValidProvider(sub.Provider) {
		details = append(details, "provider is not supported")
	} else if len(tpl.ProviderRecommendations) > 0 {
		recommended := false
		for _, provider := range tpl.ProviderRecommendations {
			if types.Provider(provider) == sub.Provider {
				recommended = true
				break
			}
		}
		if !recommended {
			details = append(details, fmt.Sprintf("provider %q is not recommended for template %s", sub.Provider, tpl.Slug))
		}
	}
	if len(tpl.Extensions)+len(sub.Extensions) > types.MaxInstanceExtensions {
		details = append(details, fmt.Sprintf("extensions must not exceed %d entries", types.MaxInstanceExtensions))
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// Deploy validates a submission and registers the instance with the
// template's extensions plus any the user added
func (s *Service) Deploy(actorUserID string, sub *Submission) (*types.Instance, error) {
	tpl, err := s.store.GetTemplate(sub.TemplateID)
	if err != nil {
		return nil, err
	}
	if err := validateSubmission(sub, tpl); err != nil {
		return nil, err
	}

	extensions := append([]string(nil), tpl.Extensions...)
	seen := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		seen[ext] = true
	}
	for _, ext := range sub.Extensions {
		if !seen[ext] {
			extensions = append(extensions, ext)
			seen[ext] = true
		}
	}

	inst, err := s.instances.Register(actorUserID, &instance.RegisterRequest{
		Name:       sub.Name,
		Provider:   sub.Provider,
		Region:     sub.Region,
		TeamID:     sub.TeamID,
		Extensions: extensions,
		ConfigHash: sub.ConfigHash,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("template", tpl.Slug).
		Str("instance_id", inst.ID).
		Str("provider", string(sub.Provider)).
		Msg("Wizard deployment registered")
	return inst, nil
}
