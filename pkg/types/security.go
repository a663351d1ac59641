package types

import "time"

// Sbom is a software bill of materials snapshot for an instance
type Sbom struct {
	ID          string          `json:"id"`
	InstanceID  string          `json:"instanceId"`
	Format      string          `json:"format,omitempty"`
	Components  []SbomComponent `json:"components"`
	GeneratedAt time.Time       `json:"generatedAt"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// SbomComponent is one recorded component in PURL form. A missing license
// flags the component for review.
type SbomComponent struct {
	PURL    string `json:"purl"`
	Name    string `json:"name"`
	Version string `json:"version"`
	License string `json:"license,omitempty"`
	Type    string `json:"type,omitempty"`
}

// CveSeverity follows the CVSS 3.x bands
type CveSeverity string

const (
	CveCritical CveSeverity = "CRITICAL"
	CveHigh     CveSeverity = "HIGH"
	CveMedium   CveSeverity = "MEDIUM"
	CveLow      CveSeverity = "LOW"
)

// SeverityForCVSS maps a CVSS 3.x base score to its band
func SeverityForCVSS(score float64) CveSeverity {
	switch {
	case score >= 9.0:
		return CveCritical
	case score >= 7.0:
		return CveHigh
	case score >= 4.0:
		return CveMedium
	default:
		return CveLow
	}
}

// VulnStatus is the triage lifecycle of a vulnerability.
// ACCEPTED_RISK and FALSE_POSITIVE are terminal alternatives.
type VulnStatus string

const (
	VulnOpen          VulnStatus = "OPEN"
	VulnAcknowledged  VulnStatus = "ACKNOWLEDGED"
	VulnPatching      VulnStatus = "PATCHING"
	VulnFixed         VulnStatus = "FIXED"
	VulnAcceptedRisk  VulnStatus = "ACCEPTED_RISK"
	VulnFalsePositive VulnStatus = "FALSE_POSITIVE"
)

// CveVulnerability links a CVE to affected components. It surfaces against
// every instance whose SBOM contains a matching (component, version) pair.
type CveVulnerability struct {
	ID                string      `json:"id"`
	CveID             string      `json:"cveId"`
	AffectedComponent string      `json:"affectedComponent"`
	AffectedVersion   string      `json:"affectedVersion"`
	CVSS              float64     `json:"cvss"`
	Severity          CveSeverity `json:"severity"`
	Status            VulnStatus  `json:"status"`
	Summary           string      `json:"summary,omitempty"`
	PublishedAt       time.Time   `json:"publishedAt"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// SecretFinding records a detected unrotated secret on an instance
type SecretFinding struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instanceId"`
	Kind       string    `json:"kind"`
	Location   string    `json:"location,omitempty"`
	AgeDays    int       `json:"ageDays"`
	Rotated    bool      `json:"rotated"`
	DetectedAt time.Time `json:"detectedAt"`
}

// SecurityGrade is the letter band for a score
type SecurityGrade string

const (
	GradeA SecurityGrade = "A"
	GradeB SecurityGrade = "B"
	GradeC SecurityGrade = "C"
	GradeD SecurityGrade = "D"
	GradeF SecurityGrade = "F"
)

// GradeForScore maps a 0-100 score to its grade band
func GradeForScore(score int) SecurityGrade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// SecurityScore is the derived 0-100 posture score for one instance
type SecurityScore struct {
	InstanceID   string        `json:"instanceId"`
	Score        int           `json:"score"`
	Grade        SecurityGrade `json:"grade"`
	CriticalCVEs int           `json:"criticalCves"`
	HighCVEs     int           `json:"highCves"`
	MediumCVEs   int           `json:"mediumCves"`
	LowCVEs      int           `json:"lowCves"`
	OpenSecrets  int           `json:"openSecrets"`
	ComputedAt   time.Time     `json:"computedAt"`
}
