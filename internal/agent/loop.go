package agent

// LoopDecision is the loop controller's verdict after a judge pass.
type LoopDecision string

const (
	LoopContinue LoopDecision = "continue-research"
	LoopFinalize LoopDecision = "finalize"
)

const (
	// ConfidenceThreshold finalizes the episode early.
	ConfidenceThreshold = 0.8
	// MaxLoops is the safety valve: the episode terminates within this
	// many retrieval rounds no matter what the judge says.
	MaxLoops = 3
)

// Decide is the loop controller. Pure function of the two gate values.
func Decide(confidence float64, loopCount int) LoopDecision {
	if confidence >= ConfidenceThreshold || loopCount >= MaxLoops {
		return LoopFinalize
	}
	return LoopContinue
}
