package api

import (
	"errors"

	"github.com/basefi-lab/dca-executor/internal/services"
	"github.com/basefi-lab/dca-executor/internal/utils"
	"github.com/gofiber/fiber/v2"
)

type createPlanRequest struct {
	UserAddress     string `json:"userAddress"`
	TokenOutAddress string `json:"tokenOutAddress"`
	Recipient       string `json:"recipient"`
	AmountIn        string `json:"amountIn"`
	ApprovalAmount  string `json:"approvalAmount"`
	Frequency       int64  `json:"frequency"`
	Fid             *int64 `json:"fid,omitempty"`
}

// handleCreatePlan creates a plan or reactivates a deactivated one for the
// same (token out, recipient) pair.
func (s *APIServer) handleCreatePlan(c *fiber.Ctx) error {
	var req createPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	if req.UserAddress == "" || req.TokenOutAddress == "" || req.Recipient == "" ||
		req.AmountIn == "" || req.Frequency <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Missing required fields",
		})
	}
	if !utils.IsValidEthereumAddress(req.UserAddress) ||
		!utils.IsValidEthereumAddress(req.TokenOutAddress) ||
		!utils.IsValidEthereumAddress(req.Recipient) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid address",
		})
	}

	plan, err := s.plans.CreatePlan(services.CreatePlanRequest{
		UserWallet:      req.UserAddress,
		Fid:             req.Fid,
		TokenOutAddress: req.TokenOutAddress,
		Recipient:       req.Recipient,
		AmountIn:        req.AmountIn,
		ApprovalAmount:  req.ApprovalAmount,
		Frequency:       req.Frequency,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTokenNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "Token not found",
			})
		case errors.Is(err, services.ErrActivePlanExists):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"error":   "An active plan already exists for this token",
			})
		default:
			s.log.WithError(err).Error("failed to create plan")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   "Failed to create plan",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    plan,
	})
}

type deletePlanRequest struct {
	UserAddress     string `json:"userAddress"`
	TokenOutAddress string `json:"tokenOutAddress"`
}

// handleDeletePlan deactivates the user's active plan for a token and purges
// its execution history. The plan row itself is kept for reactivation.
func (s *APIServer) handleDeletePlan(c *fiber.Ctx) error {
	var req deletePlanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	if req.UserAddress == "" || req.TokenOutAddress == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Missing required fields",
		})
	}

	plan, err := s.plans.DeactivatePlan(req.UserAddress, req.TokenOutAddress)
	if err != nil {
		if errors.Is(err, services.ErrPlanNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "No active plan found for this token",
			})
		}
		s.log.WithError(err).Error("failed to deactivate plan")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to deactivate plan",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"deactivatedPlan": fiber.Map{
			"planHash":        plan.PlanHash,
			"userWallet":      plan.UserWallet,
			"tokenOutAddress": plan.TokenOutAddress,
		},
	})
}

type updateApprovalRequest struct {
	UserAddress     string `json:"userAddress"`
	TokenOutAddress string `json:"tokenOutAddress"`
	ApprovalAmount  string `json:"approvalAmount"`
}

func (s *APIServer) handleUpdateApprovalAmount(c *fiber.Ctx) error {
	var req updateApprovalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	if req.UserAddress == "" || req.TokenOutAddress == "" || req.ApprovalAmount == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Missing required fields",
		})
	}

	plan, err := s.plans.UpdateApprovalAmount(req.UserAddress, req.TokenOutAddress, req.ApprovalAmount)
	if err != nil {
		if errors.Is(err, services.ErrPlanNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "No active plan found for this token",
			})
		}
		s.log.WithError(err).Error("failed to update approval amount")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to update approval amount",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    plan,
	})
}

func (s *APIServer) handleGetUserPlans(c *fiber.Ctx) error {
	wallet := c.Params("wallet")
	if !utils.IsValidEthereumAddress(wallet) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid wallet address",
		})
	}

	plans, err := s.plans.GetUserPlans(wallet)
	if err != nil {
		s.log.WithError(err).WithField("wallet", wallet).Error("failed to list user plans")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to list plans",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    plans,
	})
}
