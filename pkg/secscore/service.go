package secscore

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// vulnTransitions is the triage lifecycle. ACCEPTED_RISK and
// FALSE_POSITIVE are terminal alternatives reachable from any open state.
var vulnTransitions = map[types.VulnStatus][]types.VulnStatus{
	types.VulnOpen:          {types.VulnAcknowledged, types.VulnAcceptedRisk, types.VulnFalsePositive},
	types.VulnAcknowledged:  {types.VulnPatching, types.VulnAcceptedRisk, types.VulnFalsePositive},
	types.VulnPatching:      {types.VulnFixed, types.VulnAcceptedRisk, types.VulnFalsePositive},
	types.VulnFixed:         {},
	types.VulnAcceptedRisk:  {},
	types.VulnFalsePositive: {},
}

// openVuln reports whether a vulnerability still counts against a score
func openVuln(status types.VulnStatus) bool {
	switch status {
	case types.VulnOpen, types.VulnAcknowledged, types.VulnPatching:
		return true
	}
	return false
}

// Service owns SBOMs, CVE records, secret findings and derived scores
type Service struct {
	store   storage.Store
	logger  zerolog.Logger
	nowFunc func() time.Time
}

// NewService creates the security service
func NewService(store storage.Store) *Service {
	return &Service{
		store:   store,
		logger:  log.WithComponent("secscore"),
		nowFunc: time.Now,
	}
}

// PutSbom stores an instance's SBOM snapshot, replacing the previous one
func (s *Service) PutSbom(sbom *types.Sbom) error {
	var details []string
	if sbom.InstanceID == "" {
		details = append(details, "instanceId must not be empty")
	}
	for i, comp := range sbom.Components {
		if comp.PURL == "" {
			details = append(details, fmt.Sprintf("components[%d].purl must not be empty", i))
		}
		if comp.Name == "" {
			details = append(details, fmt.Sprintf("components[%d].name must not be empty", i))
		}
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	if sbom.ID == "" {
		sbom.ID = uuid.New().String()
	}
	sbom.CreatedAt = s.nowFunc()
	return s.store.PutSbom(sbom)
}

// UnlicensedComponents lists components whose license is missing and
// therefore flagged for review
func UnlicensedComponents(sbom *types.Sbom) []types.SbomComponent {
	var flagged []types.SbomComponent
	for _, comp := range sbom.Components {
		if comp.License == "" {
			flagged = append(flagged, comp)
		}
	}
	return flagged
}

// AddCve records a vulnerability, deriving its severity band from CVSS
func (s *Service) AddCve(cve *types.CveVulnerability) error {
	var details []string
	if cve.CveID == "" {
		details = append(details, "cveId must not be empty")
	}
	if cve.AffectedComponent == "" {
		details = append(details, "affectedComponent must not be empty")
	}
	if cve.CVSS < 0 || cve.CVSS > 10 {
		details = append(details, "cvss must be between 0 and 10")
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	if cve.ID == "" {
		cve.ID = uuid.New().String()
	}
	cve.Severity = types.SeverityForCVSS(cve.CVSS)
	if cve.Status == "" {
		cve.Status = types.VulnOpen
	}
	now := s.nowFunc()
	cve.CreatedAt = now
	cve.UpdatedAt = now
	return s.store.PutCve(cve)
}

// SetVulnStatus advances a vulnerability through the triage lifecycle
func (s *Service) SetVulnStatus(cveID string, to types.VulnStatus) (*types.CveVulnerability, error) {
	cve, err := s.store.GetCve(cveID)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, next := range vulnTransitions[cve.Status] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: cannot move vulnerability from %s to %s", types.ErrInvalidState, cve.Status, to)
	}
	cve.Status = to
	cve.UpdatedAt = s.nowFunc()
	return cve, s.store.PutCve(cve)
}

// RecordSecretFinding stores a detected secret on an instance
func (s *Service) RecordSecretFinding(finding *types.SecretFinding) error {
	if finding.InstanceID == "" || finding.Kind == "" {
		return types.NewValidationError("instanceId and kind must not be empty")
	}
	if finding.ID == "" {
		finding.ID = uuid.New().String()
	}
	if finding.DetectedAt.IsZero() {
		finding.DetectedAt = s.nowFunc()
	}
	return s.store.PutSecretFinding(finding)
}

// matches reports whether the CVE applies to the component
func matches(cve *types.CveVulnerability, comp types.SbomComponent) bool {
	return cve.AffectedComponent == comp.Name && cve.AffectedVersion == comp.Version
}

// AffectedInstances lists every instance whose SBOM contains the CVE's
// (component, version) pair
func (s *Service) AffectedInstances(cveID string) ([]string, error) {
	cve, err := s.store.GetCve(cveID)
	if err != nil {
		return nil, err
	}
	sboms, err := s.store.ListSboms()
	if err != nil {
		return nil, err
	}
	var affected []string
	for _, sbom := range sboms {
		for _, comp := range sbom.Components {
			if matches(cve, comp) {
				affected = append(affected, sbom.InstanceID)
				break
			}
		}
	}
	return affected, nil
}

// Score recomputes and stores the instance's security score. An instance
// without an SBOM scores on secrets alone.
func (s *Service) Score(instanceID string) (*types.SecurityScore, error) {
	var input ScoreInput

	sbom, err := s.store.GetSbomByInstance(instanceID)
	if err == nil {
		cves, err := s.store.ListCves()
		if err != nil {
			return nil, err
		}
		for _, cve := range cves {
			if !openVuln(cve.Status) {
				continue
			}
			hit := false
			for _, comp := range sbom.Components {
				if matches(cve, comp) {
					hit = true
					break
				}
			}
			if !hit {
				continue
			}
			switch cve.Severity {
			case types.CveCritical:
				input.CriticalCVEs++
			case types.CveHigh:
				input.HighCVEs++
			case types.CveMedium:
				input.MediumCVEs++
			default:
				input.LowCVEs++
			}
		}
	} else if !isNotFound(err) {
		return nil, err
	}

	findings, err := s.store.ListSecretFindings(instanceID)
	if err != nil {
		return nil, err
	}
	for _, finding := range findings {
		if !finding.Rotated {
			input.OpenSecrets++
		}
	}

	value := ComputeScore(input)
	score := &types.SecurityScore{
		InstanceID:   instanceID,
		Score:        value,
		Grade:        types.GradeForScore(value),
		CriticalCVEs: input.CriticalCVEs,
		HighCVEs:     input.HighCVEs,
		MediumCVEs:   input.MediumCVEs,
		LowCVEs:      input.LowCVEs,
		OpenSecrets:  input.OpenSecrets,
		ComputedAt:   s.nowFunc(),
	}
	return score, s.store.PutSecurityScore(score)
}

// ScoreFleet recomputes every instance score and returns the fleet mean
func (s *Service) ScoreFleet() (int, error) {
	instances, err := s.store.ListInstances()
	if err != nil {
		return 0, err
	}
	scores := make([]*types.SecurityScore, 0, len(instances))
	for _, inst := range instances {
		score, err := s.Score(inst.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("instance_id", inst.ID).Msg("Failed to score instance")
			continue
		}
		scores = append(scores, score)
	}
	return FleetScore(scores), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
