package drift

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// SystemActor marks remediation triggered by the Console itself
const SystemActor = "system"

// reportTransitions is the drift report workflow. SUPPRESSED is reachable
// from every state and handled separately.
var reportTransitions = map[types.DriftReportStatus][]types.DriftReportStatus{
	types.DriftDetected:     {types.DriftAcknowledged},
	types.DriftAcknowledged: {types.DriftRemediating},
	types.DriftRemediating:  {types.DriftResolved},
	types.DriftResolved:     {},
	types.DriftSuppressed:   {},
}

func checkReportTransition(from, to types.DriftReportStatus) error {
	if to == types.DriftSuppressed {
		return nil
	}
	for _, allowed := range reportTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move report from %s to %s", types.ErrInvalidState, from, to)
}

// Service owns drift reports, suppression rules and remediation jobs
type Service struct {
	store   storage.Store
	logger  zerolog.Logger
	nowFunc func() time.Time
}

// NewService creates the drift service
func NewService(store storage.Store) *Service {
	return &Service{
		store:   store,
		logger:  log.WithComponent("drift"),
		nowFunc: time.Now,
	}
}

// Detect compares the reported deployed state against the instance's
// declared configuration. Suppressed items are excluded before
// aggregation. A clean result resolves any open report; drift updates
// the open report in place or opens a new one.
func (s *Service) Detect(instanceID string, deployed DeployedState) (*types.DriftReport, error) {
	inst, err := s.store.GetInstance(instanceID)
	if err != nil {
		return nil, err
	}

	installs, err := s.store.ListExtensionInstallations(instanceID)
	if err != nil {
		return nil, err
	}
	recorded := make(map[string]string, len(installs))
	for _, install := range installs {
		recorded[install.Slug] = install.Version
	}

	now := s.nowFunc()
	items := Compare(DesiredFor(inst), deployed, recorded)
	items, err = s.filterSuppressed(instanceID, items, now)
	if err != nil {
		return nil, err
	}

	open, err := s.openReport(instanceID)
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		if open != nil {
			open.Status = types.DriftResolved
			open.UpdatedAt = now
			if err := s.store.UpdateDriftReport(open); err != nil {
				return nil, err
			}
			s.logger.Info().Str("instance_id", instanceID).Str("report_id", open.ID).Msg("Drift resolved")
		}
		return nil, nil
	}

	if open != nil {
		open.Items = items
		open.Severity = ReportSeverity(items)
		open.DetectedAt = now
		open.UpdatedAt = now
		return open, s.store.UpdateDriftReport(open)
	}

	report := &types.DriftReport{
		ID:         uuid.New().String(),
		InstanceID: instanceID,
		Severity:   ReportSeverity(items),
		Status:     types.DriftDetected,
		Items:      items,
		DetectedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateDriftReport(report); err != nil {
		return nil, err
	}
	s.logger.Warn().
		Str("instance_id", instanceID).
		Str("severity", string(report.Severity)).
		Int("items", len(items)).
		Msg("Drift detected")
	return report, nil
}

func (s *Service) filterSuppressed(instanceID string, items []types.DriftItem, now time.Time) ([]types.DriftItem, error) {
	rules, err := s.store.ListSuppressRules()
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return items, nil
	}
	kept := items[:0]
	for _, item := range items {
		suppressed := false
		for _, rule := range rules {
			if rule.Matches(instanceID, item.DriftType, now) {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

// openReport returns the instance's report still in the workflow, if any
func (s *Service) openReport(instanceID string) (*types.DriftReport, error) {
	reports, err := s.store.ListDriftReports(instanceID)
	if err != nil {
		return nil, err
	}
	for _, report := range reports {
		switch report.Status {
		case types.DriftDetected, types.DriftAcknowledged, types.DriftRemediating:
			return report, nil
		}
	}
	return nil, nil
}

func (s *Service) setStatus(reportID string, to types.DriftReportStatus) (*types.DriftReport, error) {
	report, err := s.store.GetDriftReport(reportID)
	if err != nil {
		return nil, err
	}
	if err := checkReportTransition(report.Status, to); err != nil {
		return nil, err
	}
	report.Status = to
	report.UpdatedAt = s.nowFunc()
	return report, s.store.UpdateDriftReport(report)
}

// Acknowledge marks a detected report as seen
func (s *Service) Acknowledge(reportID string) (*types.DriftReport, error) {
	return s.setStatus(reportID, types.DriftAcknowledged)
}

// Resolve closes a report
func (s *Service) Resolve(reportID string) (*types.DriftReport, error) {
	return s.setStatus(reportID, types.DriftResolved)
}

// Suppress silences a report from any state
func (s *Service) Suppress(reportID string) (*types.DriftReport, error) {
	return s.setStatus(reportID, types.DriftSuppressed)
}

// AddSuppressRule stores a suppression rule
func (s *Service) AddSuppressRule(rule *types.DriftSuppressRule) error {
	if rule.CreatedBy == "" {
		return types.Validationf("createdBy must not be empty")
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = s.nowFunc()
	return s.store.CreateSuppressRule(rule)
}

// RemoveSuppressRule deletes a suppression rule
func (s *Service) RemoveSuppressRule(ruleID string) error {
	return s.store.DeleteSuppressRule(ruleID)
}

// Remediate opens a remediation job for a report and moves the report to
// REMEDIATING. An AUTOMATIC job with no triggering user is attributed to
// "system".
func (s *Service) Remediate(reportID string, mode types.RemediationMode, triggeredBy string) (*types.RemediationJob, error) {
	report, err := s.store.GetDriftReport(reportID)
	if err != nil {
		return nil, err
	}
	if report.Status != types.DriftDetected && report.Status != types.DriftAcknowledged {
		return nil, fmt.Errorf("%w: report is %s", types.ErrInvalidState, report.Status)
	}
	if triggeredBy == "" {
		if mode != types.RemediationAutomatic {
			return nil, types.Validationf("triggeredBy must not be empty for manual remediation")
		}
		triggeredBy = SystemActor
	}

	now := s.nowFunc()
	job := &types.RemediationJob{
		ID:          uuid.New().String(),
		ReportID:    report.ID,
		InstanceID:  report.InstanceID,
		Mode:        mode,
		TriggeredBy: triggeredBy,
		Status:      types.RemediationPending,
		StartedAt:   now,
	}
	if err := s.store.PutRemediationJob(job); err != nil {
		return nil, err
	}

	if report.Status == types.DriftDetected {
		if _, err := s.Acknowledge(report.ID); err != nil {
			return nil, err
		}
	}
	if _, err := s.setStatus(report.ID, types.DriftRemediating); err != nil {
		return nil, err
	}
	return job, nil
}

// StartJob moves a pending job to RUNNING
func (s *Service) StartJob(jobID string) (*types.RemediationJob, error) {
	job, err := s.store.GetRemediationJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.RemediationPending {
		return nil, fmt.Errorf("%w: job is %s", types.ErrInvalidState, job.Status)
	}
	job.Status = types.RemediationRunning
	return job, s.store.PutRemediationJob(job)
}

// FinishJob records the job outcome. A succeeded job resolves its report.
func (s *Service) FinishJob(jobID string, succeeded bool, jobLog string) (*types.RemediationJob, error) {
	job, err := s.store.GetRemediationJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.RemediationRunning && job.Status != types.RemediationPending {
		return nil, fmt.Errorf("%w: job is %s", types.ErrInvalidState, job.Status)
	}

	now := s.nowFunc()
	job.FinishedAt = &now
	job.DurationMS = now.Sub(job.StartedAt).Milliseconds()
	job.Log = jobLog
	if succeeded {
		job.Status = types.RemediationSucceeded
	} else {
		job.Status = types.RemediationFailed
	}
	if err := s.store.PutRemediationJob(job); err != nil {
		return nil, err
	}

	if succeeded {
		if _, err := s.setStatus(job.ReportID, types.DriftResolved); err != nil {
			return nil, err
		}
	}
	return job, nil
}
