package engine

// defaultConfidence applies when the proposal context carries no
// confidence value.
const defaultConfidence = 0.8

// autoApprove decides without human input. Every requested kind must be
// on the allow list and the proposal confidence must meet the threshold;
// anything else waits for manual approval.
func (e *Engine) autoApprove(kinds []string, pctx map[string]any) bool {
	policy := e.Config.Policies.AutoApprove
	if !policy.Enabled {
		return false
	}
	for _, kind := range kinds {
		if !policy.Allows(kind) {
			return false
		}
	}
	confidence := defaultConfidence
	if v, ok := pctx["confidence"]; ok {
		switch c := v.(type) {
		case float64:
			confidence = c
		case float32:
			confidence = float64(c)
		case int:
			confidence = float64(c)
		}
	}
	return confidence >= policy.ConfidenceThreshold
}
