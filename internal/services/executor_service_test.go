package services

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"

	"github.com/basefi-lab/dca-executor/internal/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testUSDC = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

type fakeQuoteService struct {
	calldata string
	err      error
	calls    int
}

func (f *fakeQuoteService) GetSwapCalldata(ctx context.Context, src, dst, amount, recipient string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.calldata, nil
}

type fakeChainService struct {
	allowance    *big.Int
	allowanceErr error
	receipt      *types.Receipt
	swapErr      error
	beforeReturn func()

	mu        sync.Mutex
	swapCalls int
	lastKind  SwapKind
}

func (f *fakeChainService) GetAllowance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if f.allowanceErr != nil {
		return nil, f.allowanceErr
	}
	return f.allowance, nil
}

func (f *fakeChainService) ExecuteSwap(ctx context.Context, kind SwapKind, user, tokenOut, recipient common.Address, amountIn *big.Int, calldata []byte) (*types.Receipt, error) {
	f.mu.Lock()
	f.swapCalls++
	f.lastKind = kind
	f.mu.Unlock()

	if f.beforeReturn != nil {
		f.beforeReturn()
	}
	if f.swapErr != nil {
		return nil, f.swapErr
	}
	return f.receipt, nil
}

func (f *fakeChainService) ForwarderAddress() common.Address { return testForwarder }

func (f *fakeChainService) Close() {}

func (f *fakeChainService) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.swapCalls
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func successReceipt(amountIn, amountOut *big.Int) *types.Receipt {
	return &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		TxHash: common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Logs:   []*types.Log{swapExecutedLog(testForwarder, amountIn, amountOut)},
	}
}

type executorFixture struct {
	db       *gorm.DB
	plans    PlanService
	quotes   *fakeQuoteService
	chain    *fakeChainService
	executor ExecutorService
	planHash string
}

func setupExecutor(t *testing.T, isWrapped bool) *executorFixture {
	db := setupTestDB(t)
	seedToken(t, db, isWrapped)
	plans := NewPlanService(db)

	plan, err := plans.CreatePlan(defaultCreateRequest())
	require.NoError(t, err)

	quotes := &fakeQuoteService{calldata: "0xdeadbeef"}
	chain := &fakeChainService{
		allowance: big.NewInt(100_000_000),
		receipt:   successReceipt(big.NewInt(10_000_000), big.NewInt(500_000_000_000_000_000)),
	}

	return &executorFixture{
		db:       db,
		plans:    plans,
		quotes:   quotes,
		chain:    chain,
		executor: NewExecutorService(plans, quotes, chain, testUSDC, testLogger()),
		planHash: plan.PlanHash,
	}
}

func requireKind(t *testing.T, err error, kind ExecutionErrorKind) *ExecutionError {
	t.Helper()
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, kind, execErr.Kind)
	return execErr
}

func TestExecutePlan(t *testing.T) {
	t.Run("successful first execution records the settlement", func(t *testing.T) {
		f := setupExecutor(t, false)

		result, err := f.executor.ExecutePlan(context.Background(), f.planHash)
		require.NoError(t, err)

		assert.Equal(t, f.chain.receipt.TxHash.Hex(), result.TxHash)
		assert.Equal(t, "500000000000000000", result.AmountOut)
		assert.Equal(t, "300000", result.FeeAmount)
		assert.Equal(t, SwapKindStandard, f.chain.lastKind)

		plan, err := f.plans.GetPlanByHash(f.planHash)
		require.NoError(t, err)
		assert.NotZero(t, plan.LastExecutedAt)

		executions, err := f.plans.ListExecutions(f.planHash)
		require.NoError(t, err)
		require.Len(t, executions, 1)
		assert.Equal(t, "10000000", executions[0].AmountIn)
		assert.Equal(t, "500000000000000000", executions[0].AmountOut)
		assert.Equal(t, "300000", executions[0].FeeAmount)
	})

	t.Run("unknown plan", func(t *testing.T) {
		f := setupExecutor(t, false)

		_, err := f.executor.ExecutePlan(context.Background(), "0x"+"ff"+"11223344556677889900112233445566778899001122334455667788990011")
		requireKind(t, err, KindNotFound)
		assert.Zero(t, f.chain.calls())
	})

	t.Run("already executed", func(t *testing.T) {
		f := setupExecutor(t, false)
		require.NoError(t, f.db.Model(&models.Plan{}).Where("plan_hash = ?", f.planHash).
			Update("last_executed_at", 1700000000).Error)

		_, err := f.executor.ExecutePlan(context.Background(), f.planHash)
		requireKind(t, err, KindAlreadyExecuted)
		assert.Zero(t, f.chain.calls())
	})

	t.Run("inactive plan", func(t *testing.T) {
		f := setupExecutor(t, false)
		require.NoError(t, f.db.Model(&models.Plan{}).Where("plan_hash = ?", f.planHash).
			Update("active", false).Error)

		_, err := f.executor.ExecutePlan(context.Background(), f.planHash)
		requireKind(t, err, KindInactivePlan)
	})

	t.Run("insufficient allowance stops before any submission", func(t *testing.T) {
		f := setupExecutor(t, false)
		f.chain.allowance = big.NewInt(9_999_999)

		_, err := f.executor.ExecutePlan(context.Background(), f.planHash)
		requireKind(t, err, KindInsufficientAllowance)
		assert.Zero(t, f.quotes.calls)
		assert.Zero(t, f.chain.calls())
	})

	t.Run("allowance read failure", func(t *testing.T) {
		f := setupExecutor(t, false)
		f.chain.allowanceErr = errors.New("rpc timeout")

		_, err := f.executor.ExecutePlan(context.Background(), f.planHash)
		requireKind(t, err, KindChainReadFailed)
	})

	t.Run("wrapped destination skips the allowance check", func(t *testing.T) {
		f := setupExecutor(t, true)
		f.chain.allowanceErr = errors.New("must not be called")

		result, err := f.executor.ExecutePlan(context.Background(), f.planHash)
		require.NoError(t, err)
		assert.NotEmpty(t, result.TxHash)
		assert.Equal(t, SwapKindNative, f.chain.lastKind)
	})

	t.Run("quote failure leaves the plan eligible for retry", func(t *testing.T) {
		f := setupExecutor(t, false)
		f.quotes.err = errors.New("aggregator 500")

		_, err := f.executor.ExecutePlan(context.Background(), f.planHash)
		requireKind(t, err, KindQuoteUnavailable)
		assert.Zero(t, f.chain.calls())

		plan, err := f.plans.GetPlanByHash(f.planHash)
		require.NoError(t, err)
		assert.Zero(t, plan.LastExecutedAt)

		executions, err := f.plans.ListExecutions(f.planHash)
		require.NoError(t, err)
		assert.Empty(t, executions)
	})

	t.Run("malformed aggregator calldata", func(t *testing.T) {
		f := setupExecutor(t, false)
		f.quotes.calldata = "not-hex"

		_, err := f.executor.ExecutePlan(context.Background(), f.planHash)
		requireKind(t, err, KindQuoteUnavailable)
		assert.Zero(t, f.chain.calls())
	})

	t.Run("failed submission writes nothing", func(t *testing.T) {
		f := setupExecutor(t, false)
		f.chain.swapErr = errors.New("execution reverted")

		_, err := f.executor.ExecutePlan(context.Background(), f.planHash)
		requireKind(t, err, KindSwapExecutionFailed)

		plan, err := f.plans.GetPlanByHash(f.planHash)
		require.NoError(t, err)
		assert.Zero(t, plan.LastExecutedAt)

		executions, err := f.plans.ListExecutions(f.planHash)
		require.NoError(t, err)
		assert.Empty(t, executions)
	})

	t.Run("missing settlement event degrades to nominal amounts", func(t *testing.T) {
		f := setupExecutor(t, false)
		f.chain.receipt = &types.Receipt{
			Status: types.ReceiptStatusSuccessful,
			TxHash: common.HexToHash("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		}

		result, err := f.executor.ExecutePlan(context.Background(), f.planHash)
		require.NoError(t, err)
		assert.Equal(t, "0", result.AmountOut)
		assert.Equal(t, "0", result.FeeAmount)

		executions, err := f.plans.ListExecutions(f.planHash)
		require.NoError(t, err)
		require.Len(t, executions, 1)
		assert.Equal(t, "10000000", executions[0].AmountIn, "degraded record keeps the plan's nominal input")
		assert.Equal(t, "0", executions[0].AmountOut)
	})
}

// Two executions of the same plan race past the eligibility read; exactly
// one may commit, the other must surface a conflict without appending a
// second ledger row.
func TestExecutePlanConcurrentDoubleExecution(t *testing.T) {
	f := setupExecutor(t, false)

	entered := make(chan chan struct{}, 2)
	f.chain.beforeReturn = func() {
		release := make(chan struct{})
		entered <- release
		<-release
	}

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.executor.ExecutePlan(context.Background(), f.planHash)
			results <- err
		}()
	}

	// Both callers have read the plan with a zero last execution timestamp
	// and are parked inside submission. Let them finish one at a time so the
	// loser's recording attempt runs against the winner's committed state.
	first := <-entered
	second := <-entered
	close(first)
	firstErr := <-results
	close(second)
	secondErr := <-results

	errs := []error{firstErr, secondErr}
	var succeeded, conflicted int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireKind(t, err, KindAlreadyExecuted)
		conflicted++
	}
	assert.Equal(t, 1, succeeded, "exactly one execution must win")
	assert.Equal(t, 1, conflicted, "the loser must observe a conflict")

	executions, err := f.plans.ListExecutions(f.planHash)
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}
