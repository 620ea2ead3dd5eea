package ledgeradapter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"merkledrop/contexts/token-distribution/distribution-service/domain/entities"
	"merkledrop/contexts/token-distribution/distribution-service/ports"
	distributorv1 "merkledrop/contracts/gen/distributor/v1"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Config carries everything needed to talk to the deployed distributor
// contract. PrivateKeyHex signs createDistribution/finalizeDistribution
// transactions; reads need no key.
type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKeyHex   string
	ChainID         int64
}

// EVMLedger drives the distributor contract over JSON-RPC. Writes block on
// mining so callers only ever observe confirmed or deterministically failed
// submissions.
type EVMLedger struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	abi      abi.ABI
	signer   *ecdsa.PrivateKey
	chainID  *big.Int
	logger   *slog.Logger
}

func NewEVMLedger(ctx context.Context, cfg Config, logger *slog.Logger) (*EVMLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(distributorv1.ABI))
	if err != nil {
		return nil, fmt.Errorf("parse distributor abi: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse ledger signing key: %w", err)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("malformed distributor address %q", cfg.ContractAddress)
	}
	address := common.HexToAddress(cfg.ContractAddress)
	contract := bind.NewBoundContract(address, parsed, client, client, client)
	return &EVMLedger{
		client:   client,
		contract: contract,
		abi:      parsed,
		signer:   key,
		chainID:  big.NewInt(cfg.ChainID),
		logger:   logger,
	}, nil
}

func (l *EVMLedger) Close() {
	l.client.Close()
}

func (l *EVMLedger) SubmitDistribution(ctx context.Context, merkleRoot [32]byte, total *big.Int, vault entities.VaultType, durationDays int) (ports.SubmitReceipt, error) {
	code, err := vaultCode(vault)
	if err != nil {
		return ports.SubmitReceipt{}, err
	}
	opts, err := l.transactOpts(ctx)
	if err != nil {
		return ports.SubmitReceipt{}, err
	}

	tx, err := l.contract.Transact(opts, "createDistribution",
		merkleRoot, total, code, big.NewInt(int64(durationDays)))
	if err != nil {
		return ports.SubmitReceipt{}, fmt.Errorf("createDistribution: %w", err)
	}
	receipt, err := l.waitMined(ctx, tx, "createDistribution")
	if err != nil {
		return ports.SubmitReceipt{}, err
	}

	created, err := l.decodeCreated(receipt)
	if err != nil {
		return ports.SubmitReceipt{}, err
	}
	l.logger.Info("distribution submitted to ledger",
		"event", "distribution_ledger_submitted",
		"module", "token-distribution/distribution-service",
		"layer", "adapter",
		"distribution_id", created.DistributionID,
		"tx_ref", tx.Hash().Hex(),
	)
	created.TxRef = tx.Hash().Hex()
	return created, nil
}

func (l *EVMLedger) SubmitFinalize(ctx context.Context, distributionID uint64) (string, error) {
	opts, err := l.transactOpts(ctx)
	if err != nil {
		return "", err
	}
	tx, err := l.contract.Transact(opts, "finalizeDistribution",
		new(big.Int).SetUint64(distributionID))
	if err != nil {
		return "", fmt.Errorf("finalizeDistribution: %w", err)
	}
	if _, err := l.waitMined(ctx, tx, "finalizeDistribution"); err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

func (l *EVMLedger) ReadDistribution(ctx context.Context, distributionID uint64) (ports.LedgerState, error) {
	var out []any
	err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "distributions",
		new(big.Int).SetUint64(distributionID))
	if err != nil {
		return ports.LedgerState{}, fmt.Errorf("read distribution %d: %w", distributionID, err)
	}
	if len(out) < 7 {
		return ports.LedgerState{}, fmt.Errorf("read distribution %d: truncated response", distributionID)
	}
	claimed, ok := out[2].(*big.Int)
	if !ok {
		return ports.LedgerState{}, fmt.Errorf("read distribution %d: unexpected claimedAmount type", distributionID)
	}
	finalized, ok := out[6].(bool)
	if !ok {
		return ports.LedgerState{}, fmt.Errorf("read distribution %d: unexpected finalized type", distributionID)
	}
	return ports.LedgerState{
		TotalClaimed: new(big.Int).Set(claimed),
		Finalized:    finalized,
	}, nil
}

func (l *EVMLedger) ReadVaultRemaining(ctx context.Context, vault entities.VaultType) (*big.Int, error) {
	code, err := vaultCode(vault)
	if err != nil {
		return nil, err
	}
	var out []any
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "vaultRemaining", code); err != nil {
		return nil, fmt.Errorf("read vault %s: %w", vault, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("read vault %s: empty response", vault)
	}
	remaining, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("read vault %s: unexpected remaining type", vault)
	}
	return new(big.Int).Set(remaining), nil
}

func (l *EVMLedger) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(l.signer, l.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

func (l *EVMLedger) waitMined(ctx context.Context, tx *types.Transaction, method string) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, l.client, tx)
	if err != nil {
		return nil, fmt.Errorf("%s await mining: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s reverted in tx %s", method, tx.Hash().Hex())
	}
	return receipt, nil
}

// decodeCreated pulls the ledger-assigned id and time window out of the
// DistributionCreated event. The id lives in the first indexed topic; the
// window lives in the data section.
func (l *EVMLedger) decodeCreated(receipt *types.Receipt) (ports.SubmitReceipt, error) {
	eventID := l.abi.Events["DistributionCreated"].ID
	for _, logEntry := range receipt.Logs {
		if len(logEntry.Topics) < 2 || logEntry.Topics[0] != eventID {
			continue
		}
		values, err := l.abi.Unpack("DistributionCreated", logEntry.Data)
		if err != nil {
			return ports.SubmitReceipt{}, fmt.Errorf("decode DistributionCreated: %w", err)
		}
		if len(values) < 5 {
			return ports.SubmitReceipt{}, fmt.Errorf("decode DistributionCreated: truncated data")
		}
		start, okStart := values[3].(*big.Int)
		end, okEnd := values[4].(*big.Int)
		if !okStart || !okEnd {
			return ports.SubmitReceipt{}, fmt.Errorf("decode DistributionCreated: unexpected window types")
		}
		return ports.SubmitReceipt{
			DistributionID: new(big.Int).SetBytes(logEntry.Topics[1].Bytes()).Uint64(),
			StartTime:      time.Unix(start.Int64(), 0).UTC(),
			EndTime:        time.Unix(end.Int64(), 0).UTC(),
		}, nil
	}
	return ports.SubmitReceipt{}, fmt.Errorf("DistributionCreated event missing from tx %s", receipt.TxHash.Hex())
}

func vaultCode(vault entities.VaultType) (uint8, error) {
	switch vault {
	case entities.VaultGameRewards:
		return distributorv1.VaultGameRewards, nil
	case entities.VaultSocialRewards:
		return distributorv1.VaultSocialRewards, nil
	case entities.VaultEcosystemFund:
		return distributorv1.VaultEcosystemFund, nil
	default:
		return 0, fmt.Errorf("unknown vault %q", vault)
	}
}
