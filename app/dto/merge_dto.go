package dto

// PendingGroupItem is one pending duplicate group awaiting review
type PendingGroupItem struct {
	ID             string  `json:"id"`
	GroupKey       string  `json:"group_key"`
	Confidence     float64 `json:"confidence"`
	NormalizedName string  `json:"normalized_name"`
	UpdatedAt      string  `json:"updated_at"`
	ExpiresAt      string  `json:"expires_at"`
}

// ListPendingResponse contains the pending-merge review list
type ListPendingResponse struct {
	Message string             `json:"message"`
	Items   []PendingGroupItem `json:"items"`
}

// SuggestionCandidateDTO is one candidate snapshot inside a suggestion detail
type SuggestionCandidateDTO struct {
	CustomerID string  `json:"customer_id"`
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
}

// SuggestionDetailResponse contains one suggestion with its candidate snapshot
type SuggestionDetailResponse struct {
	ID             string                   `json:"id"`
	GroupKey       string                   `json:"group_key"`
	Confidence     float64                  `json:"confidence"`
	NormalizedName string                   `json:"normalized_name"`
	Rationale      string                   `json:"rationale"`
	Candidates     []SuggestionCandidateDTO `json:"candidates"`
	UpdatedAt      string                   `json:"updated_at"`
	ExpiresAt      string                   `json:"expires_at"`
}

// UpsertSuggestionItem is one producer-supplied duplicate-group proposal
type UpsertSuggestionItem struct {
	GroupKey       string         `json:"group_key" validate:"required,max=512"`
	Confidence     float64        `json:"confidence" validate:"min=0,max=1"`
	NormalizedName string         `json:"normalized_name" validate:"max=512"`
	Rationale      *string        `json:"rationale,omitempty"`
	Candidates     []CandidateRef `json:"candidates" validate:"required,min=1,dive"`
}

// CandidateRef identifies one customer inside a proposal
type CandidateRef struct {
	CustomerID string  `json:"customer_id" validate:"required,uuid"`
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
}

// UpsertSuggestionsRequest is the producer-facing batch upsert payload
type UpsertSuggestionsRequest struct {
	Suggestions []UpsertSuggestionItem `json:"suggestions" validate:"required,min=1,max=500,dive"`
	TTLHours    int                    `json:"ttl_hours,omitempty" validate:"omitempty,min=1,max=168"`
}

// UpsertSuggestionsResponse reports how many proposals were accepted
type UpsertSuggestionsResponse struct {
	Message  string `json:"message"`
	Accepted int    `json:"accepted"`
}

// ApproveMergeResponse is the outcome of an approved merge group
type ApproveMergeResponse struct {
	Message             string   `json:"message"`
	GroupKey            string   `json:"group_key"`
	CanonicalCustomerID string   `json:"canonical_customer_id"`
	MergedCustomerIDs   []string `json:"merged_customer_ids"`
}

// RejectMergeResponse is the outcome of a rejected merge group
type RejectMergeResponse struct {
	Message  string `json:"message"`
	GroupKey string `json:"group_key"`
	Status   string `json:"status"`
}

// ResolveCustomerResponse maps one raw customer id to its canonical id
type ResolveCustomerResponse struct {
	CustomerID          string `json:"customer_id"`
	CanonicalCustomerID string `json:"canonical_customer_id"`
	Merged              bool   `json:"merged"`
}

// ResolveBatchRequest asks for canonical ids for a batch of raw ids
type ResolveBatchRequest struct {
	CustomerIDs []string `json:"customer_ids" validate:"required,min=1,max=1000,dive,uuid"`
}

// ResolveBatchResponse maps every requested raw id to its canonical id,
// in request order
type ResolveBatchResponse struct {
	Message string                    `json:"message"`
	Items   []ResolveCustomerResponse `json:"items"`
}
