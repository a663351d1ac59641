package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/roosthq/roost/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// Alert rule operations

func (s *BoltStore) CreateAlertRule(rule *types.AlertRule) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketAlertRules, rule.ID, rule)
	})
}

func (s *BoltStore) GetAlertRule(id string) (*types.AlertRule, error) {
	var rule types.AlertRule
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketAlertRules, id, &rule)
	})
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *BoltStore) ListAlertRules() ([]*types.AlertRule, error) {
	var rules []*types.AlertRule
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlertRules).ForEach(func(k, v []byte) error {
			var rule types.AlertRule
			if err := json.Unmarshal(v, &rule); err != nil {
				return err
			}
			rules = append(rules, &rule)
			return nil
		})
	})
	return rules, err
}

func (s *BoltStore) UpdateAlertRule(rule *types.AlertRule) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketAlertRules).Get([]byte(rule.ID)) == nil {
			return types.ErrNotFound
		}
		return put(tx, bucketAlertRules, rule.ID, rule)
	})
}

func (s *BoltStore) DeleteAlertRule(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketAlertRules).Get([]byte(id)) == nil {
			return types.ErrNotFound
		}
		return tx.Bucket(bucketAlertRules).Delete([]byte(id))
	})
}

func (s *BoltStore) PutAlertEvent(event *types.AlertEvent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketAlertEvents, event.ID, event)
	})
}

func (s *BoltStore) GetAlertEvent(id string) (*types.AlertEvent, error) {
	var event types.AlertEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketAlertEvents, id, &event)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *BoltStore) ListAlertEvents(ruleID string) ([]*types.AlertEvent, error) {
	var events []*types.AlertEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlertEvents).ForEach(func(k, v []byte) error {
			var event types.AlertEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			if ruleID == "" || event.RuleID == ruleID {
				events = append(events, &event)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].FiredAt.Before(events[j].FiredAt) })
	return events, nil
}

// Cost operations

func (s *BoltStore) CreateCostEntry(entry *types.CostEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketCostEntries, entry.ID, entry)
	})
}

func (s *BoltStore) ListCostEntries(instanceID string, from, to time.Time) ([]*types.CostEntry, error) {
	var entries []*types.CostEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCostEntries).ForEach(func(k, v []byte) error {
			var entry types.CostEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if instanceID != "" && entry.InstanceID != instanceID {
				return nil
			}
			if !from.IsZero() && entry.PeriodEnd.Before(from) {
				return nil
			}
			if !to.IsZero() && entry.PeriodStart.After(to) {
				return nil
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PeriodStart.Before(entries[j].PeriodStart) })
	return entries, nil
}

func (s *BoltStore) CreateBudget(budget *types.Budget) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketBudgets, budget.ID, budget)
	})
}

func (s *BoltStore) GetBudget(id string) (*types.Budget, error) {
	var budget types.Budget
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketBudgets, id, &budget)
	})
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

func (s *BoltStore) ListBudgets() ([]*types.Budget, error) {
	var budgets []*types.Budget
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBudgets).ForEach(func(k, v []byte) error {
			var budget types.Budget
			if err := json.Unmarshal(v, &budget); err != nil {
				return err
			}
			budgets = append(budgets, &budget)
			return nil
		})
	})
	return budgets, err
}

func (s *BoltStore) UpdateBudget(budget *types.Budget) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketBudgets).Get([]byte(budget.ID)) == nil {
			return types.ErrNotFound
		}
		return put(tx, bucketBudgets, budget.ID, budget)
	})
}

func (s *BoltStore) DeleteBudget(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketBudgets).Get([]byte(id)) == nil {
			return types.ErrNotFound
		}
		return tx.Bucket(bucketBudgets).Delete([]byte(id))
	})
}

// CreateBudgetAlert writes an alert keyed by (budget, threshold, period
// key). It returns false without writing when an alert already exists for
// that key, which makes threshold crossings exactly-once per period.
func (s *BoltStore) CreateBudgetAlert(alert *types.BudgetAlert) (bool, error) {
	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		key := fmt.Sprintf("%s/%d/%s", alert.BudgetID, alert.Threshold, alert.PeriodKey)
		if tx.Bucket(bucketBudgetAlerts).Get([]byte(key)) != nil {
			return nil
		}
		created = true
		return put(tx, bucketBudgetAlerts, key, alert)
	})
	return created, err
}

func (s *BoltStore) ListBudgetAlerts(budgetID string) ([]*types.BudgetAlert, error) {
	var alerts []*types.BudgetAlert
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBudgetAlerts).ForEach(func(k, v []byte) error {
			var alert types.BudgetAlert
			if err := json.Unmarshal(v, &alert); err != nil {
				return err
			}
			if budgetID == "" || alert.BudgetID == budgetID {
				alerts = append(alerts, &alert)
			}
			return nil
		})
	})
	return alerts, err
}

func (s *BoltStore) CreateCostAnomaly(anomaly *types.CostAnomaly) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketCostAnomalies, anomaly.ID, anomaly)
	})
}

func (s *BoltStore) ListCostAnomalies() ([]*types.CostAnomaly, error) {
	var anomalies []*types.CostAnomaly
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCostAnomalies).ForEach(func(k, v []byte) error {
			var anomaly types.CostAnomaly
			if err := json.Unmarshal(v, &anomaly); err != nil {
				return err
			}
			anomalies = append(anomalies, &anomaly)
			return nil
		})
	})
	return anomalies, err
}

func (s *BoltStore) PutRecommendation(rec *types.OptimizationRecommendation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketRecommendations, rec.ID, rec)
	})
}

// ListRecommendations returns recommendations sorted by potential savings
// descending
func (s *BoltStore) ListRecommendations() ([]*types.OptimizationRecommendation, error) {
	var recs []*types.OptimizationRecommendation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecommendations).ForEach(func(k, v []byte) error {
			var rec types.OptimizationRecommendation
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].PotentialSavingsUSD > recs[j].PotentialSavingsUSD })
	return recs, nil
}

// Drift operations

func (s *BoltStore) CreateDriftReport(report *types.DriftReport) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketDriftReports, report.ID, report)
	})
}

func (s *BoltStore) GetDriftReport(id string) (*types.DriftReport, error) {
	var report types.DriftReport
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketDriftReports, id, &report)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *BoltStore) ListDriftReports(instanceID string) ([]*types.DriftReport, error) {
	var reports []*types.DriftReport
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDriftReports).ForEach(func(k, v []byte) error {
			var report types.DriftReport
			if err := json.Unmarshal(v, &report); err != nil {
				return err
			}
			if instanceID == "" || report.InstanceID == instanceID {
				reports = append(reports, &report)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].DetectedAt.After(reports[j].DetectedAt) })
	return reports, nil
}

func (s *BoltStore) UpdateDriftReport(report *types.DriftReport) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketDriftReports).Get([]byte(report.ID)) == nil {
			return types.ErrNotFound
		}
		return put(tx, bucketDriftReports, report.ID, report)
	})
}

func (s *BoltStore) CreateSuppressRule(rule *types.DriftSuppressRule) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketSuppressRules, rule.ID, rule)
	})
}

func (s *BoltStore) ListSuppressRules() ([]*types.DriftSuppressRule, error) {
	var rules []*types.DriftSuppressRule
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSuppressRules).ForEach(func(k, v []byte) error {
			var rule types.DriftSuppressRule
			if err := json.Unmarshal(v, &rule); err != nil {
				return err
			}
			rules = append(rules, &rule)
			return nil
		})
	})
	return rules, err
}

func (s *BoltStore) DeleteSuppressRule(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSuppressRules).Get([]byte(id)) == nil {
			return types.ErrNotFound
		}
		return tx.Bucket(bucketSuppressRules).Delete([]byte(id))
	})
}

func (s *BoltStore) PutRemediationJob(job *types.RemediationJob) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketRemediationJobs, job.ID, job)
	})
}

func (s *BoltStore) GetRemediationJob(id string) (*types.RemediationJob, error) {
	var job types.RemediationJob
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketRemediationJobs, id, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BoltStore) ListRemediationJobs(reportID string) ([]*types.RemediationJob, error) {
	var jobs []*types.RemediationJob
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRemediationJobs).ForEach(func(k, v []byte) error {
			var job types.RemediationJob
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if reportID == "" || job.ReportID == reportID {
				jobs = append(jobs, &job)
			}
			return nil
		})
	})
	return jobs, err
}

// Security operations. SBOMs are keyed by instance: a new snapshot
// replaces the prior one.

func (s *BoltStore) PutSbom(sbom *types.Sbom) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketSboms, sbom.InstanceID, sbom)
	})
}

func (s *BoltStore) GetSbomByInstance(instanceID string) (*types.Sbom, error) {
	var sbom types.Sbom
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketSboms, instanceID, &sbom)
	})
	if err != nil {
		return nil, err
	}
	return &sbom, nil
}

func (s *BoltStore) ListSboms() ([]*types.Sbom, error) {
	var sboms []*types.Sbom
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSboms).ForEach(func(k, v []byte) error {
			var sbom types.Sbom
			if err := json.Unmarshal(v, &sbom); err != nil {
				return err
			}
			sboms = append(sboms, &sbom)
			return nil
		})
	})
	return sboms, err
}

func (s *BoltStore) PutCve(cve *types.CveVulnerability) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketCves, cve.ID, cve)
	})
}

func (s *BoltStore) GetCve(id string) (*types.CveVulnerability, error) {
	var cve types.CveVulnerability
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketCves, id, &cve)
	})
	if err != nil {
		return nil, err
	}
	return &cve, nil
}

func (s *BoltStore) ListCves() ([]*types.CveVulnerability, error) {
	var cves []*types.CveVulnerability
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCves).ForEach(func(k, v []byte) error {
			var cve types.CveVulnerability
			if err := json.Unmarshal(v, &cve); err != nil {
				return err
			}
			cves = append(cves, &cve)
			return nil
		})
	})
	return cves, err
}

func (s *BoltStore) PutSecretFinding(finding *types.SecretFinding) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketSecretFindings, finding.ID, finding)
	})
}

func (s *BoltStore) ListSecretFindings(instanceID string) ([]*types.SecretFinding, error) {
	var findings []*types.SecretFinding
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecretFindings).ForEach(func(k, v []byte) error {
			var finding types.SecretFinding
			if err := json.Unmarshal(v, &finding); err != nil {
				return err
			}
			if instanceID == "" || finding.InstanceID == instanceID {
				findings = append(findings, &finding)
			}
			return nil
		})
	})
	return findings, err
}

func (s *BoltStore) PutSecurityScore(score *types.SecurityScore) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketSecurityScores, score.InstanceID, score)
	})
}

func (s *BoltStore) GetSecurityScore(instanceID string) (*types.SecurityScore, error) {
	var score types.SecurityScore
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketSecurityScores, instanceID, &score)
	})
	if err != nil {
		return nil, err
	}
	return &score, nil
}

func (s *BoltStore) ListSecurityScores() ([]*types.SecurityScore, error) {
	var scores []*types.SecurityScore
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecurityScores).ForEach(func(k, v []byte) error {
			var score types.SecurityScore
			if err := json.Unmarshal(v, &score); err != nil {
				return err
			}
			scores = append(scores, &score)
			return nil
		})
	})
	return scores, err
}
