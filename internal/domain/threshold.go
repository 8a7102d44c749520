package domain

// Intensity is a raw light sample as returned by the ADC.
type Intensity uint16

// ThreshValue is the cutoff below which a channel counts as interrupted.
type ThreshValue uint16

// Channel is a physical sensor input index.
type Channel int

// ThresholdChange is a parsed remote request to retune one side.
type ThresholdChange struct {
	Side     Side        `json:"side"`
	NewValue ThreshValue `json:"new_value"`
}
