package api

import (
	"errors"

	"github.com/basefi-lab/dca-executor/internal/services"
	"github.com/basefi-lab/dca-executor/internal/utils"
	"github.com/gofiber/fiber/v2"
)

// statusForKind maps the executor's closed error set to HTTP status codes.
// This is the only place that mapping happens.
var statusForKind = map[services.ExecutionErrorKind]int{
	services.KindNotFound:              fiber.StatusNotFound,
	services.KindAlreadyExecuted:       fiber.StatusConflict,
	services.KindInactivePlan:          fiber.StatusConflict,
	services.KindInsufficientAllowance: fiber.StatusPaymentRequired,
	services.KindChainReadFailed:       fiber.StatusInternalServerError,
	services.KindQuoteUnavailable:      fiber.StatusInternalServerError,
	services.KindSwapExecutionFailed:   fiber.StatusInternalServerError,
	services.KindRecordingFailed:       fiber.StatusInternalServerError,
}

// handleExecutePlan triggers the first execution of a plan. Internal error
// text is logged server-side; callers only see the classified message and,
// for recording failures, the reconciliation payload.
func (s *APIServer) handleExecutePlan(c *fiber.Ctx) error {
	planHash := c.Params("plan_hash")
	if !utils.IsValidPlanHash(planHash) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Malformed plan hash",
		})
	}

	result, err := s.executor.ExecutePlan(c.Context(), planHash)
	if err != nil {
		var execErr *services.ExecutionError
		if errors.As(err, &execErr) {
			status, ok := statusForKind[execErr.Kind]
			if !ok {
				status = fiber.StatusInternalServerError
			}
			body := fiber.Map{
				"success": false,
				"error":   execErr.Message,
				"code":    string(execErr.Kind),
			}
			if len(execErr.Details) > 0 {
				body["details"] = execErr.Details
			}
			return c.Status(status).JSON(body)
		}

		s.log.WithError(err).WithField("plan_hash", planHash).Error("unclassified execution error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Internal error",
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"txHash":    result.TxHash,
		"amountOut": result.AmountOut,
		"feeAmount": result.FeeAmount,
	})
}

func (s *APIServer) handleListExecutions(c *fiber.Ctx) error {
	planHash := c.Params("plan_hash")
	if !utils.IsValidPlanHash(planHash) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Malformed plan hash",
		})
	}

	executions, err := s.plans.ListExecutions(planHash)
	if err != nil {
		s.log.WithError(err).WithField("plan_hash", planHash).Error("failed to list executions")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to list executions",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    executions,
	})
}
