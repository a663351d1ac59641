/*
Package secscore derives a 0-100 security posture score per instance.

CVEs apply to an instance when its SBOM contains a matching
(component, version) pair; each open CVE subtracts a weight set by its
CVSS band, and each unrotated secret subtracts a fixed penalty. Scores
map to grades A through F, and the fleet score is the mean across
instances. Vulnerabilities move OPEN, ACKNOWLEDGED, PATCHING, FIXED,
with ACCEPTED_RISK and FALSE_POSITIVE as terminal alternatives.
*/
package secscore
