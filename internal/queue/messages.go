package queue

// RunRequest asks the worker to run the consistency checker for one
// graph. Method selects the pipeline; only "graphrag" exists today.
type RunRequest struct {
	GraphName     string `json:"graph_name"`
	Method        string `json:"method"`
	CorrelationID string `json:"correlation_id"`
}

// MethodGraphRAG is the document-to-knowledge-graph pipeline.
const MethodGraphRAG = "graphrag"
