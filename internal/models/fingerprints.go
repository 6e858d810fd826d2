package models

import "time"

// HashEntry is a single fingerprint hash and the line it starts on
type HashEntry struct {
	Hash uint64 `json:"hash"`
	Line int    `json:"line"`
}

// StoredHash is the BSON form of a HashEntry. BSON has no unsigned 64-bit
// integer, so the hash keeps its bit pattern in an int64.
type StoredHash struct {
	Hash int64 `bson:"h"`
	Line int   `bson:"l"`
}

// FileFingerprints represents the fingerprints of one versioned file stored in MongoDB
type FileFingerprints struct {
	CorpusID   string       `bson:"corpusId" json:"corpusId"`
	Repository string       `bson:"repository" json:"repository"`
	Revision   string       `bson:"revision" json:"revision"`
	File       string       `bson:"file" json:"file"`
	Language   string       `bson:"language,omitempty" json:"language,omitempty"`
	Hashes     []StoredHash `bson:"hashes" json:"-"`
	CreatedAt  time.Time    `bson:"createdAt" json:"createdAt"`
}

// FingerprintRequest represents the request sent to the fingerprinting service
type FingerprintRequest struct {
	Repository string `json:"repository"`
	Revision   string `json:"revision"`
	File       string `json:"file"`
	Language   string `json:"language"`
	SourceCode string `json:"sourceCode"`
}

// FingerprintResponse represents the response from the fingerprinting service
type FingerprintResponse struct {
	KGramSize    int         `json:"kGramSize"`
	WindowSize   int         `json:"windowSize"`
	Fingerprints []HashEntry `json:"fingerprints"`
}

// FingerprintError represents an error response from the fingerprinting service
type FingerprintError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
