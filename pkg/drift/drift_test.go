package drift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

func newTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewService(store), store
}

func seedInstance(t *testing.T, store storage.Store, extensions []string, configHash string) *types.Instance {
	t.Helper()
	inst := &types.Instance{
		ID:         "i1",
		Name:       "web-1",
		Provider:   types.ProviderFly,
		Status:     types.StatusRunning,
		Extensions: extensions,
		ConfigHash: configHash,
	}
	require.NoError(t, store.CreateInstance(inst))
	return inst
}

func TestCompare(t *testing.T) {
	desired := DesiredState{
		Extensions: []string{"git", "docker@24.0", "vim"},
		ConfigHash: "abc",
		Resources:  map[string]string{"cpu": "4", "memory": "8Gi"},
	}
	deployed := DeployedState{
		Extensions: []DeployedExtension{
			{Slug: "git", Version: "2.40"},
			{Slug: "docker", Version: "23.0"},
			{Slug: "htop", Version: "3.2"},
		},
		ConfigHash: "def",
		Resources:  map[string]string{"cpu": "2", "memory": "8Gi"},
	}
	recorded := map[string]string{"git": "2.39"}

	items := Compare(desired, deployed, recorded)

	byType := make(map[types.DriftType]types.DriftItem)
	for _, item := range items {
		byType[item.DriftType] = item
	}

	require.Len(t, items, 6)
	assert.Equal(t, "vim", byType[types.DriftMissingExtension].Expected)
	assert.Equal(t, "4", byType[types.DriftResourceDrift].Expected)
	assert.Equal(t, "2", byType[types.DriftResourceDrift].Actual)
	assert.Equal(t, "docker@24.0", byType[types.DriftVersionMismatch].Expected)
	assert.Equal(t, "docker@23.0", byType[types.DriftVersionMismatch].Actual)
	assert.Equal(t, "git@2.39", byType[types.DriftExtensionMismatch].Expected)
	assert.Equal(t, "htop", byType[types.DriftExtraExtension].Actual)
	assert.Equal(t, "abc", byType[types.DriftConfigHashChange].Expected)
	assert.Equal(t, "def", byType[types.DriftConfigHashChange].Actual)

	assert.Equal(t, types.DriftCritical, ReportSeverity(items))
}

func TestCompareSeverities(t *testing.T) {
	tests := []struct {
		driftType types.DriftType
		severity  types.DriftSeverity
	}{
		{types.DriftMissingExtension, types.DriftCritical},
		{types.DriftConfigHashChange, types.DriftHigh},
		{types.DriftExtensionMismatch, types.DriftHigh},
		{types.DriftResourceDrift, types.DriftMedium},
		{types.DriftVersionMismatch, types.DriftMedium},
		{types.DriftExtraExtension, types.DriftLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.severity, types.SeverityForDriftType(tt.driftType), string(tt.driftType))
	}
}

func TestCompareCleanState(t *testing.T) {
	desired := DesiredState{Extensions: []string{"git"}, ConfigHash: "abc"}
	deployed := DeployedState{
		Extensions: []DeployedExtension{{Slug: "git", Version: "2.40"}},
		ConfigHash: "abc",
	}
	assert.Empty(t, Compare(desired, deployed, nil))
}

func TestDetectCreatesAndResolvesReport(t *testing.T) {
	service, store := newTestService(t)
	seedInstance(t, store, []string{"git", "docker"}, "abc")

	report, err := service.Detect("i1", DeployedState{
		Extensions: []DeployedExtension{{Slug: "git"}},
		ConfigHash: "abc",
	})
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, types.DriftDetected, report.Status)
	assert.Equal(t, types.DriftCritical, report.Severity)
	require.Len(t, report.Items, 1)
	assert.Equal(t, types.DriftMissingExtension, report.Items[0].DriftType)

	// Same drift again updates the open report rather than opening another
	again, err := service.Detect("i1", DeployedState{
		Extensions: []DeployedExtension{{Slug: "git"}},
		ConfigHash: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, report.ID, again.ID)

	reports, err := store.ListDriftReports("i1")
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	// Clean state closes the report
	clean, err := service.Detect("i1", DeployedState{
		Extensions: []DeployedExtension{{Slug: "git"}, {Slug: "docker"}},
		ConfigHash: "abc",
	})
	require.NoError(t, err)
	assert.Nil(t, clean)

	stored, err := store.GetDriftReport(report.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DriftResolved, stored.Status)
}

func TestSuppressRules(t *testing.T) {
	service, store := newTestService(t)
	seedInstance(t, store, []string{"git"}, "abc")

	require.NoError(t, service.AddSuppressRule(&types.DriftSuppressRule{
		DriftType: types.DriftExtraExtension,
		CreatedBy: "u1",
	}))

	// Extra extension is suppressed fleet-wide; nothing else drifts
	report, err := service.Detect("i1", DeployedState{
		Extensions: []DeployedExtension{{Slug: "git"}, {Slug: "htop"}},
		ConfigHash: "abc",
	})
	require.NoError(t, err)
	assert.Nil(t, report)
}

func TestExpiredSuppressRuleIsInert(t *testing.T) {
	service, store := newTestService(t)
	seedInstance(t, store, []string{"git"}, "abc")

	expired := time.Now().Add(-time.Hour)
	require.NoError(t, service.AddSuppressRule(&types.DriftSuppressRule{
		DriftType: types.DriftExtraExtension,
		ExpiresAt: &expired,
		CreatedBy: "u1",
	}))

	report, err := service.Detect("i1", DeployedState{
		Extensions: []DeployedExtension{{Slug: "git"}, {Slug: "htop"}},
		ConfigHash: "abc",
	})
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, types.DriftLow, report.Severity)
}

func TestSuppressRuleValidation(t *testing.T) {
	service, _ := newTestService(t)
	err := service.AddSuppressRule(&types.DriftSuppressRule{})
	_, ok := types.IsValidation(err)
	assert.True(t, ok)
}

func TestReportWorkflow(t *testing.T) {
	service, store := newTestService(t)
	seedInstance(t, store, []string{"git"}, "abc")

	report, err := service.Detect("i1", DeployedState{ConfigHash: "abc"})
	require.NoError(t, err)
	require.NotNil(t, report)

	// REMEDIATING is not reachable straight from DETECTED by hand
	_, err = service.setStatus(report.ID, types.DriftRemediating)
	assert.ErrorIs(t, err, types.ErrInvalidState)

	ack, err := service.Acknowledge(report.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DriftAcknowledged, ack.Status)

	job, err := service.Remediate(report.ID, types.RemediationManual, "u1")
	require.NoError(t, err)
	assert.Equal(t, types.RemediationPending, job.Status)
	assert.Equal(t, "u1", job.TriggeredBy)

	stored, err := store.GetDriftReport(report.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DriftRemediating, stored.Status)

	_, err = service.StartJob(job.ID)
	require.NoError(t, err)

	finished, err := service.FinishJob(job.ID, true, "reinstalled git")
	require.NoError(t, err)
	assert.Equal(t, types.RemediationSucceeded, finished.Status)
	require.NotNil(t, finished.FinishedAt)

	stored, err = store.GetDriftReport(report.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DriftResolved, stored.Status)

	// Closed reports cannot be reopened
	_, err = service.Acknowledge(report.ID)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestSuppressFromAnyState(t *testing.T) {
	service, store := newTestService(t)
	seedInstance(t, store, []string{"git"}, "abc")

	report, err := service.Detect("i1", DeployedState{ConfigHash: "abc"})
	require.NoError(t, err)

	_, err = service.Acknowledge(report.ID)
	require.NoError(t, err)

	suppressed, err := service.Suppress(report.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DriftSuppressed, suppressed.Status)
}

func TestRemediateAttribution(t *testing.T) {
	service, store := newTestService(t)
	seedInstance(t, store, []string{"git"}, "abc")

	report, err := service.Detect("i1", DeployedState{ConfigHash: "abc"})
	require.NoError(t, err)

	_, err = service.Remediate(report.ID, types.RemediationManual, "")
	_, ok := types.IsValidation(err)
	assert.True(t, ok)

	job, err := service.Remediate(report.ID, types.RemediationAutomatic, "")
	require.NoError(t, err)
	assert.Equal(t, SystemActor, job.TriggeredBy)

	failed, err := service.FinishJob(job.ID, false, "apt failed")
	require.NoError(t, err)
	assert.Equal(t, types.RemediationFailed, failed.Status)

	stored, err := store.GetDriftReport(report.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DriftRemediating, stored.Status)
}

func TestSweepUsesInstallRecords(t *testing.T) {
	service, store := newTestService(t)
	seedInstance(t, store, []string{"git", "docker"}, "abc")
	require.NoError(t, store.PutExtensionInstallation(&types.ExtensionInstallation{
		ID:         "in1",
		InstanceID: "i1",
		Slug:       "git",
		Version:    "2.40",
	}))

	detector := NewDetector(store, service)
	detector.Sweep()

	reports, err := store.ListDriftReports("i1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, types.DriftDetected, reports[0].Status)
	assert.Equal(t, types.DriftCritical, reports[0].Severity)
}
