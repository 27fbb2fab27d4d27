package models

// MappingCandidate is one ranked result of the mapping pipeline: a target
// control that survived retrieval and reranking, carrying both scores and the
// target text they were computed against. Reasoning is always present ("" when
// no rationale was generated for the candidate) so merges stay deterministic.
type MappingCandidate struct {
	TargetControlKey   string  `dynamodbav:"target_control_key"   json:"target_control_key"`
	TargetControlID    string  `dynamodbav:"target_control_id"    json:"target_control_id"`
	TargetFrameworkKey string  `dynamodbav:"target_framework_key" json:"target_framework_key"`
	SimilarityScore    float64 `dynamodbav:"similarity_score"     json:"similarity_score"`
	RerankScore        float64 `dynamodbav:"rerank_score"         json:"rerank_score"`
	Text               string  `dynamodbav:"text"                 json:"text"`
	Reasoning          string  `dynamodbav:"reasoning"            json:"reasoning"`
}

// ReasoningResult is a generated rationale for one candidate, joined to
// mappings by target control key.
type ReasoningResult struct {
	TargetControlKey string `json:"target_control_key"`
	Reasoning        string `json:"reasoning"`
}
