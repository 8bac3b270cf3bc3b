package domain

// CrowdLevel is the discretized occupancy shown to passengers.
type CrowdLevel string

const (
	CrowdEmpty    CrowdLevel = "empty"
	CrowdLow      CrowdLevel = "low"
	CrowdHalf     CrowdLevel = "half"
	CrowdHigh     CrowdLevel = "high"
	CrowdFull     CrowdLevel = "full"
	CrowdStanding CrowdLevel = "standing"
)
