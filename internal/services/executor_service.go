package services

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/basefi-lab/dca-executor/internal/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	allowanceTimeout = 15 * time.Second
	quoteTimeout     = 20 * time.Second
	// Covers submission plus one confirmation. A timeout here does not prove
	// the transaction failed; the operator must check the chain before any
	// resubmission to avoid spending the allowance twice.
	submitTimeout = 3 * time.Minute
)

// ExecutionResult is returned on a successful first execution of a plan.
type ExecutionResult struct {
	TxHash    string `json:"txHash"`
	AmountOut string `json:"amountOut"`
	FeeAmount string `json:"feeAmount"`
}

// ExecutorService runs the first execution of a DCA plan: eligibility
// checks, allowance verification, quote retrieval, on-chain submission,
// settlement parsing and the atomic recording of the outcome. It holds no
// state across invocations; everything persisted lives in the PlanService.
type ExecutorService interface {
	ExecutePlan(ctx context.Context, planHash string) (*ExecutionResult, error)
}

type executorService struct {
	plans       PlanService
	quotes      QuoteService
	chain       ChainService
	usdcAddress string
	logger      *logrus.Logger
	now         func() time.Time
}

func NewExecutorService(plans PlanService, quotes QuoteService, chain ChainService, usdcAddress string, logger *logrus.Logger) ExecutorService {
	return &executorService{
		plans:       plans,
		quotes:      quotes,
		chain:       chain,
		usdcAddress: usdcAddress,
		logger:      logger,
		now:         time.Now,
	}
}

// ExecutePlan performs the first execution of the plan identified by
// planHash. Errors are always *ExecutionError; no plan state is mutated
// before the on-chain swap, so every failure up to and including submission
// leaves the plan eligible for a fresh attempt.
func (s *executorService) ExecutePlan(ctx context.Context, planHash string) (*ExecutionResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"plan_hash": planHash,
		"trace_id":  uuid.New().String(),
	})

	plan, err := s.plans.GetPlanByHash(planHash)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, newExecutionError(KindNotFound, "plan not found", err)
		}
		return nil, newExecutionError(KindNotFound, "failed to load plan", err)
	}

	// This endpoint performs only the first execution; the recurring trigger
	// path is a separate scheduler.
	if plan.LastExecutedAt != 0 {
		return nil, newExecutionError(KindAlreadyExecuted, "initial investment already executed", nil)
	}
	if !plan.Active {
		return nil, newExecutionError(KindInactivePlan, "plan is not active", nil)
	}

	log = log.WithFields(logrus.Fields{
		"user":      plan.UserWallet,
		"token_out": plan.TokenOutAddress,
		"amount_in": plan.AmountIn,
	})
	log.Info("starting plan execution")

	amountIn, ok := new(big.Int).SetString(plan.AmountIn, 10)
	if !ok || amountIn.Sign() <= 0 {
		return nil, newExecutionError(KindSwapExecutionFailed, "plan has an invalid amount", nil)
	}

	userAddr := common.HexToAddress(plan.UserWallet)
	tokenOutAddr := common.HexToAddress(plan.TokenOutAddress)
	recipientAddr := common.HexToAddress(plan.Recipient)

	// Wrapped destinations take the native-asset path inside the forwarding
	// contract and need no prior ERC-20 approval.
	if !plan.TokenOut.IsWrapped {
		allowCtx, cancel := context.WithTimeout(ctx, allowanceTimeout)
		allowance, err := s.chain.GetAllowance(allowCtx, common.HexToAddress(s.usdcAddress), userAddr)
		cancel()
		if err != nil {
			log.WithError(err).Error("allowance read failed")
			return nil, newExecutionError(KindChainReadFailed, "failed to read token allowance", err)
		}
		if allowance.Cmp(amountIn) < 0 {
			log.WithField("allowance", allowance.String()).Warn("insufficient allowance")
			return nil, newExecutionError(KindInsufficientAllowance, "insufficient allowance", nil)
		}
	} else {
		log.Debug("native path, skipping allowance check")
	}

	quoteCtx, cancel := context.WithTimeout(ctx, quoteTimeout)
	calldataHex, err := s.quotes.GetSwapCalldata(quoteCtx, s.usdcAddress, plan.TokenOutAddress, plan.AmountIn, plan.Recipient)
	cancel()
	if err != nil {
		log.WithError(err).Error("quote request failed")
		return nil, newExecutionError(KindQuoteUnavailable, "failed to get swap data", err)
	}

	calldata, err := hexutil.Decode(calldataHex)
	if err != nil {
		log.WithError(err).Error("aggregator returned malformed calldata")
		return nil, newExecutionError(KindQuoteUnavailable, "malformed swap data", err)
	}

	kind := SwapKindStandard
	if plan.TokenOut.IsWrapped {
		kind = SwapKindNative
	}

	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	receipt, err := s.chain.ExecuteSwap(submitCtx, kind, userAddr, tokenOutAddr, recipientAddr, amountIn, calldata)
	cancel()
	if err != nil {
		// No database write has happened; the plan stays eligible for retry.
		log.WithError(err).Error("swap execution failed")
		return nil, newExecutionError(KindSwapExecutionFailed, "swap execution failed", err)
	}

	txHash := receipt.TxHash.Hex()
	log = log.WithField("tx_hash", txHash)
	log.Info("swap confirmed")

	settlement := ParseSwapExecutedEvent(receipt, s.chain.ForwarderAddress())
	recordedAmountIn := settlement.AmountIn
	if !settlement.Found() {
		// The swap is irreversible at this point; record it with the plan's
		// nominal input rather than failing the operation.
		log.Warn("settlement event not found in receipt, recording zeros")
		recordedAmountIn = plan.AmountIn
	}

	executedAt := s.now().Unix()
	record := &models.Execution{
		TxHash:          txHash,
		AmountIn:        recordedAmountIn,
		AmountOut:       settlement.AmountOut,
		FeeAmount:       settlement.FeeAmount,
		TokenOutAddress: plan.TokenOutAddress,
	}

	if err := s.plans.RecordExecution(plan.PlanHash, 0, executedAt, record); err != nil {
		if errors.Is(err, ErrPlanConflict) {
			// A concurrent execution won the compare-and-swap write. Our
			// swap still landed on-chain, so log everything needed to
			// reconcile it, but surface a conflict rather than a second
			// ledger row.
			log.WithFields(logrus.Fields{
				"amount_in":  record.AmountIn,
				"amount_out": record.AmountOut,
				"fee_amount": record.FeeAmount,
			}).Error("concurrent execution detected, swap not recorded")
			return nil, newExecutionError(KindAlreadyExecuted, "plan was executed concurrently", err)
		}

		// The one failure mode needing operator intervention: the swap
		// landed on-chain but the ledger write did not. Surface everything
		// needed for manual reconciliation.
		log.WithError(err).WithFields(logrus.Fields{
			"amount_in":  record.AmountIn,
			"amount_out": record.AmountOut,
			"fee_amount": record.FeeAmount,
		}).Error("recording failed after confirmed swap")
		execErr := newExecutionError(KindRecordingFailed, "database update failed after confirmed swap", err)
		execErr.Details = map[string]string{
			"txHash":    txHash,
			"amountIn":  record.AmountIn,
			"amountOut": record.AmountOut,
			"feeAmount": record.FeeAmount,
		}
		return nil, execErr
	}

	log.WithFields(logrus.Fields{
		"amount_out": settlement.AmountOut,
		"fee_amount": settlement.FeeAmount,
	}).Info("plan execution recorded")

	return &ExecutionResult{
		TxHash:    txHash,
		AmountOut: settlement.AmountOut,
		FeeAmount: settlement.FeeAmount,
	}, nil
}
