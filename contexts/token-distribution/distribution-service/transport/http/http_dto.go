package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type AllocationInput struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type CreateDistributionRequest struct {
	Allocations  []AllocationInput `json:"allocations"`
	VaultType    string            `json:"vault_type"`
	DurationDays int               `json:"duration_days"`
	Metadata     string            `json:"metadata"`
}

// AllocationIssue reports one rejected allocation entry by its position in
// the submitted list.
type AllocationIssue struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

type ValidationErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Issues  []AllocationIssue `json:"issues"`
}

type DistributionDTO struct {
	ID             uint64 `json:"id"`
	MerkleRoot     string `json:"merkle_root"`
	VaultType      string `json:"vault_type"`
	Status         string `json:"status"`
	TotalAllocated string `json:"total_allocated"`
	TotalClaimed   string `json:"total_claimed"`
	RecipientCount int    `json:"recipient_count"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Finalized      bool   `json:"finalized"`
	SubmitTxRef    string `json:"submit_tx_ref,omitempty"`
	FinalizeTxRef  string `json:"finalize_tx_ref,omitempty"`
	Metadata       string `json:"metadata,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type CreateDistributionResponse struct {
	Distribution DistributionDTO `json:"distribution"`
}

type GetDistributionResponse struct {
	Distribution DistributionDTO `json:"distribution"`
}

type ListDistributionsResponse struct {
	Items []DistributionDTO `json:"items"`
}

type StatsResponse struct {
	Total          int    `json:"total"`
	Pending        int    `json:"pending"`
	Active         int    `json:"active"`
	Expired        int    `json:"expired"`
	Finalized      int    `json:"finalized"`
	TotalAllocated string `json:"total_allocated"`
	TotalClaimed   string `json:"total_claimed"`
}

type ProofResponse struct {
	Eligible       bool     `json:"eligible"`
	Reason         string   `json:"reason,omitempty"`
	DistributionID uint64   `json:"distribution_id"`
	Address        string   `json:"address"`
	LeafIndex      int      `json:"leaf_index"`
	MerkleRoot     string   `json:"merkle_root"`
	Proof          []string `json:"proof"`
	Allocated      string   `json:"allocated"`
	Claimed        string   `json:"claimed"`
	Claimable      string   `json:"claimable"`
}

type ClaimableResponse struct {
	Eligible  bool   `json:"eligible"`
	Reason    string `json:"reason,omitempty"`
	Status    string `json:"status"`
	Claimable string `json:"claimable"`
}

type FinalizeResponse struct {
	DistributionID uint64 `json:"distribution_id"`
	Status         string `json:"status"`
	TxRef          string `json:"tx_ref,omitempty"`
	RetryCount     int    `json:"retry_count"`
	NextRetryAt    string `json:"next_retry_at,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	ExecutionType  string `json:"execution_type"`
}

type SyncResponse struct {
	Distribution DistributionDTO `json:"distribution"`
}
