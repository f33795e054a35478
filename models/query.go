package models

// FieldDescriptor is one column of a live warehouse table schema
type FieldDescriptor struct {
	Name        string            `json:"name"`
	Type        string            `json:"field_type"`
	Mode        string            `json:"mode"`
	Description string            `json:"description,omitempty"`
	Fields      []FieldDescriptor `json:"fields,omitempty"`
}

// DryRunResult is the cost estimate reported by a dry run
type DryRunResult struct {
	BytesProcessed int64   `json:"bytes_processed"`
	GBProcessed    float64 `json:"gb_processed"`
}

// QueryResult is a fully materialized result set
type QueryResult struct {
	Rows []map[string]interface{} `json:"data"`
}

// GigabytesFromBytes converts bytes to GiB, as reported by the warehouse UI
func GigabytesFromBytes(b int64) float64 {
	return float64(b) / (1024 * 1024 * 1024)
}
