package shared

// BatchError records one failed item inside a batch operation.
type BatchError struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

// BatchSummary reports per-item outcomes for batch operations. Partial
// success is expected; a single bad item never aborts the batch.
type BatchSummary struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Errors    []BatchError `json:"errors,omitempty"`
}

// Success counts one successful item.
func (s *BatchSummary) Success() {
	s.Total++
	s.Succeeded++
}

// Failure counts one failed item and records its error.
func (s *BatchSummary) Failure(id int64, err error) {
	s.Total++
	s.Failed++
	s.Errors = append(s.Errors, BatchError{ID: id, Error: err.Error()})
}
