package models

// Submission represents one source file read from the Redis stream
type Submission struct {
	CorpusID     string      `json:"corpusId"`
	Repository   string      `json:"repository"`
	Revision     string      `json:"revision"`
	File         string      `json:"file"`
	Language     string      `json:"language"`
	SourceCode   string      `json:"sourceCode"`
	Fingerprints []HashEntry `json:"fingerprints"`
}

// HasFingerprints reports whether the producer shipped precomputed fingerprints
func (s *Submission) HasFingerprints() bool {
	return len(s.Fingerprints) > 0
}
