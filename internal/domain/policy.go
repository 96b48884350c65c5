package domain

// Decide combines the kinematic outcome and the risk score into one of the
// three terminal decisions. Boundaries are inclusive on the stricter side:
// a score exactly at AutoRejectAbove rejects, exactly at AutoApproveBelow
// approves. Nothing above the auto-approve bound is ever cleared without a
// human: the band up to RiskThreshold flags as elevated risk, at or above it
// as a manual-review case. This is an anti-fraud gate, so ties fail closed.
func Decide(checks ValidationChecks, score float64, settings RiskSettings) (Decision, string) {
	if !checks.AllValid() {
		return DecisionRejected, checks.FirstFailureReason()
	}
	if score >= settings.AutoRejectAbove || score >= settings.CriticalThreshold {
		return DecisionRejected, ReasonHighRisk
	}
	if score <= settings.AutoApproveBelow {
		return DecisionApproved, ReasonClean
	}
	if score >= settings.RiskThreshold {
		return DecisionFlagged, ReasonManualReview
	}
	return DecisionFlagged, ReasonElevatedRisk
}
