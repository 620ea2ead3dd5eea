package postgresadapter

import (
	"math/big"
	"time"

	"merkledrop/contexts/token-distribution/distribution-service/domain/entities"
)

type distributionModel struct {
	ID             uint64    `gorm:"column:id;primaryKey"`
	MerkleRoot     string    `gorm:"column:merkle_root"`
	VaultType      string    `gorm:"column:vault_type"`
	TotalAllocated string    `gorm:"column:total_allocated;type:numeric(78,0)"`
	TotalClaimed   string    `gorm:"column:total_claimed;type:numeric(78,0)"`
	RecipientCount int       `gorm:"column:recipient_count"`
	StartTime      time.Time `gorm:"column:start_time"`
	EndTime        time.Time `gorm:"column:end_time"`
	Finalized      bool      `gorm:"column:finalized"`
	SubmitTxRef    string    `gorm:"column:submit_tx_ref"`
	FinalizeTxRef  string    `gorm:"column:finalize_tx_ref"`
	Metadata       string    `gorm:"column:metadata"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (distributionModel) TableName() string {
	return "distributions"
}

func distributionModelFromEntity(item entities.Distribution) (distributionModel, error) {
	return distributionModel{
		ID:             item.ID,
		MerkleRoot:     item.MerkleRoot,
		VaultType:      string(item.VaultType),
		TotalAllocated: amountString(item.TotalAllocated),
		TotalClaimed:   amountString(item.TotalClaimed),
		RecipientCount: item.RecipientCount,
		StartTime:      item.StartTime.UTC(),
		EndTime:        item.EndTime.UTC(),
		Finalized:      item.Finalized,
		SubmitTxRef:    item.SubmitTxRef,
		FinalizeTxRef:  item.FinalizeTxRef,
		Metadata:       item.Metadata,
		CreatedAt:      item.CreatedAt.UTC(),
		UpdatedAt:      item.UpdatedAt.UTC(),
	}, nil
}

func (m distributionModel) toEntity() (entities.Distribution, error) {
	totalAllocated, err := parseAmount(m.TotalAllocated)
	if err != nil {
		return entities.Distribution{}, err
	}
	totalClaimed, err := parseAmount(m.TotalClaimed)
	if err != nil {
		return entities.Distribution{}, err
	}
	return entities.Distribution{
		ID:             m.ID,
		MerkleRoot:     m.MerkleRoot,
		VaultType:      entities.VaultType(m.VaultType),
		TotalAllocated: totalAllocated,
		TotalClaimed:   totalClaimed,
		RecipientCount: m.RecipientCount,
		StartTime:      m.StartTime.UTC(),
		EndTime:        m.EndTime.UTC(),
		Finalized:      m.Finalized,
		SubmitTxRef:    m.SubmitTxRef,
		FinalizeTxRef:  m.FinalizeTxRef,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}, nil
}

type leafModel struct {
	DistributionID  uint64     `gorm:"column:distribution_id;primaryKey"`
	Address         string     `gorm:"column:address;primaryKey"`
	AllocatedAmount string     `gorm:"column:allocated_amount;type:numeric(78,0)"`
	LeafHash        string     `gorm:"column:leaf_hash"`
	LeafIndex       int        `gorm:"column:leaf_index"`
	ClaimedAmount   string     `gorm:"column:claimed_amount;type:numeric(78,0)"`
	ClaimCount      int        `gorm:"column:claim_count"`
	LastClaimTxRef  string     `gorm:"column:last_claim_tx_ref"`
	LastClaimTime   *time.Time `gorm:"column:last_claim_time"`
}

func (leafModel) TableName() string {
	return "distribution_leaves"
}

func leafModelFromEntity(item entities.Leaf) (leafModel, error) {
	return leafModel{
		DistributionID:  item.DistributionID,
		Address:         item.Address,
		AllocatedAmount: amountString(item.AllocatedAmount),
		LeafHash:        item.LeafHash,
		LeafIndex:       item.LeafIndex,
		ClaimedAmount:   amountString(item.ClaimedAmount),
		ClaimCount:      item.ClaimCount,
		LastClaimTxRef:  item.LastClaimTxRef,
		LastClaimTime:   utcTimePtr(item.LastClaimTime),
	}, nil
}

func (m leafModel) toEntity() (entities.Leaf, error) {
	allocated, err := parseAmount(m.AllocatedAmount)
	if err != nil {
		return entities.Leaf{}, err
	}
	claimed, err := parseAmount(m.ClaimedAmount)
	if err != nil {
		return entities.Leaf{}, err
	}
	return entities.Leaf{
		DistributionID:  m.DistributionID,
		Address:         m.Address,
		AllocatedAmount: allocated,
		LeafHash:        m.LeafHash,
		LeafIndex:       m.LeafIndex,
		ClaimedAmount:   claimed,
		ClaimCount:      m.ClaimCount,
		LastClaimTxRef:  m.LastClaimTxRef,
		LastClaimTime:   utcTimePtr(m.LastClaimTime),
	}, nil
}

type finalizationAttemptModel struct {
	DistributionID uint64     `gorm:"column:distribution_id;primaryKey"`
	Status         string     `gorm:"column:status"`
	TxRef          string     `gorm:"column:tx_ref"`
	RetryCount     int        `gorm:"column:retry_count"`
	NextRetryAt    *time.Time `gorm:"column:next_retry_at"`
	LastError      string     `gorm:"column:last_error"`
	ExecutionType  string     `gorm:"column:execution_type"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (finalizationAttemptModel) TableName() string {
	return "finalization_attempts"
}

func finalizationAttemptModelFromEntity(item entities.FinalizationAttempt) finalizationAttemptModel {
	return finalizationAttemptModel{
		DistributionID: item.DistributionID,
		Status:         string(item.Status),
		TxRef:          item.TxRef,
		RetryCount:     item.RetryCount,
		NextRetryAt:    utcTimePtr(item.NextRetryAt),
		LastError:      item.LastError,
		ExecutionType:  string(item.ExecutionType),
		UpdatedAt:      item.UpdatedAt.UTC(),
	}
}

func (m finalizationAttemptModel) toEntity() entities.FinalizationAttempt {
	return entities.FinalizationAttempt{
		DistributionID: m.DistributionID,
		Status:         entities.AttemptStatus(m.Status),
		TxRef:          m.TxRef,
		RetryCount:     m.RetryCount,
		NextRetryAt:    utcTimePtr(m.NextRetryAt),
		LastError:      m.LastError,
		ExecutionType:  entities.ExecutionType(m.ExecutionType),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID    string     `gorm:"column:outbox_id;primaryKey"`
	EventType   string     `gorm:"column:event_type"`
	Payload     []byte     `gorm:"column:payload;type:jsonb"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	PublishedAt *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "distribution_outbox"
}

func amountString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func utcTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
