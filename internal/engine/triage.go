package engine

// triage labels every entity whose confidence falls inside
// [minConfidence, upperBound] as questionable and returns copies of the
// flagged entities. This labeling is advisory for human review only: it never
// removes an entity from masking, and entities below minConfidence are still
// masked — the policy is mask first, flag doubtful findings for audit.
func triage(entities []Entity, minConfidence, upperBound float64) []Entity {
	var questionable []Entity
	for i := range entities {
		c := entities[i].Confidence
		if c >= minConfidence && c <= upperBound {
			entities[i].Status = StatusQuestionable
			questionable = append(questionable, entities[i])
		}
	}
	return questionable
}
