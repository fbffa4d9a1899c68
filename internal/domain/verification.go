package domain

// VerificationStatus tracks a document through the post-upload check.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationVerifying VerificationStatus = "verifying"
	VerificationVerified  VerificationStatus = "verified"
	VerificationNotFound  VerificationStatus = "not_found"
	VerificationError     VerificationStatus = "error"
)

// FileDetails is the remote metadata captured when verification finds the
// object. Size is a pointer because some providers omit it on folder-less
// object stores.
type FileDetails struct {
	Path   string `json:"path"`
	Size   *int64 `json:"size,omitempty"`
	WebURL string `json:"webUrl,omitempty"`
}

// VerificationResult is the outcome of one verification call. Exactly one of
// the three terminal statuses is set; Error carries the provider's message
// verbatim when Status is "error".
type VerificationResult struct {
	Verified    bool               `json:"verified"`
	Status      VerificationStatus `json:"status"`
	Error       string             `json:"error,omitempty"`
	FileDetails *FileDetails       `json:"fileDetails,omitempty"`
}
