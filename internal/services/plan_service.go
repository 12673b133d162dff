package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/basefi-lab/dca-executor/internal/models"
	"github.com/basefi-lab/dca-executor/internal/utils"
	"gorm.io/gorm"
)

// PlanService owns all persisted plan and execution state. RecordExecution
// is the single transactional boundary used by the executor: it either
// commits the plan timestamp update and the ledger row together or commits
// neither.
type PlanService interface {
	GetPlanByHash(planHash string) (*models.Plan, error)
	CreatePlan(req CreatePlanRequest) (*models.Plan, error)
	DeactivatePlan(userWallet, tokenOutAddress string) (*models.Plan, error)
	UpdateApprovalAmount(userWallet, tokenOutAddress, approvalAmount string) (*models.Plan, error)
	GetUserPlans(wallet string) ([]models.Plan, error)
	ListExecutions(planHash string) ([]models.Execution, error)
	RecordExecution(planHash string, prevLastExecutedAt, executedAt int64, record *models.Execution) error
}

type CreatePlanRequest struct {
	UserWallet      string `validate:"required"`
	Fid             *int64
	TokenOutAddress string `validate:"required"`
	Recipient       string `validate:"required"`
	AmountIn        string `validate:"required"`
	ApprovalAmount  string
	Frequency       int64 `validate:"gt=0"`
}

type planService struct {
	db *gorm.DB
}

func NewPlanService(db *gorm.DB) PlanService {
	return &planService{db: db}
}

func (s *planService) GetPlanByHash(planHash string) (*models.Plan, error) {
	var plan models.Plan
	err := s.db.Preload("TokenOut").Where("plan_hash = ?", planHash).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// CreatePlan creates a plan for (user, token out, recipient), or reactivates
// a previously deactivated one. Reactivation resets LastExecutedAt to zero
// and refreshes the creation timestamp. At most one plan per (user, token
// out) may be active; a second create for the same token with a different
// recipient is rejected.
func (s *planService) CreatePlan(req CreatePlanRequest) (*models.Plan, error) {
	tokenAddress := strings.ToLower(req.TokenOutAddress)
	planHash := utils.PlanHash(tokenAddress, req.Recipient)

	var plan *models.Plan
	err := s.db.Transaction(func(tx *gorm.DB) error {
		user, err := findOrCreateUser(tx, req.UserWallet, req.Fid)
		if err != nil {
			return err
		}

		var token models.Token
		if err := tx.Where("address = ?", tokenAddress).First(&token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenNotFound
			}
			return err
		}

		// Reject a second active plan for the same (user, token out) pair.
		var conflicting int64
		err = tx.Model(&models.Plan{}).
			Where("user_wallet = ? AND token_out_address = ? AND active = ? AND plan_hash <> ?",
				user.Wallet, tokenAddress, true, planHash).
			Count(&conflicting).Error
		if err != nil {
			return err
		}
		if conflicting > 0 {
			return ErrActivePlanExists
		}

		var existing models.Plan
		err = tx.Where("plan_hash = ?", planHash).First(&existing).Error
		switch {
		case err == nil:
			// Reactivate: reset execution state and refresh creation time.
			updates := map[string]interface{}{
				"user_wallet":      user.Wallet,
				"amount_in":        req.AmountIn,
				"approval_amount":  req.ApprovalAmount,
				"frequency":        req.Frequency,
				"last_executed_at": 0,
				"active":           true,
				"created_at":       time.Now(),
			}
			if err := tx.Model(&models.Plan{}).Where("plan_hash = ?", planHash).Updates(updates).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			newPlan := models.Plan{
				PlanHash:        planHash,
				UserWallet:      user.Wallet,
				TokenOutAddress: tokenAddress,
				Recipient:       req.Recipient,
				AmountIn:        req.AmountIn,
				ApprovalAmount:  req.ApprovalAmount,
				Frequency:       req.Frequency,
				LastExecutedAt:  0,
				Active:          true,
			}
			if err := tx.Create(&newPlan).Error; err != nil {
				return err
			}
		default:
			return err
		}

		var created models.Plan
		if err := tx.Preload("TokenOut").Where("plan_hash = ?", planHash).First(&created).Error; err != nil {
			return err
		}
		plan = &created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// DeactivatePlan purges the plan's execution history and marks the plan
// inactive. The plan row itself is kept so the hash stays reserved and the
// plan can be reactivated later.
func (s *planService) DeactivatePlan(userWallet, tokenOutAddress string) (*models.Plan, error) {
	tokenAddress := strings.ToLower(tokenOutAddress)

	var plan models.Plan
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_wallet = ? AND token_out_address = ? AND active = ?",
			userWallet, tokenAddress, true).First(&plan).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPlanNotFound
		}
		if err != nil {
			return err
		}

		if err := tx.Where("plan_hash = ?", plan.PlanHash).Delete(&models.Execution{}).Error; err != nil {
			return err
		}

		return tx.Model(&models.Plan{}).Where("plan_hash = ?", plan.PlanHash).
			Update("active", false).Error
	})
	if err != nil {
		return nil, err
	}
	plan.Active = false
	return &plan, nil
}

func (s *planService) UpdateApprovalAmount(userWallet, tokenOutAddress, approvalAmount string) (*models.Plan, error) {
	tokenAddress := strings.ToLower(tokenOutAddress)

	var plan models.Plan
	err := s.db.Where("user_wallet = ? AND token_out_address = ? AND active = ?",
		userWallet, tokenAddress, true).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.Plan{}).Where("plan_hash = ?", plan.PlanHash).
		Update("approval_amount", approvalAmount).Error; err != nil {
		return nil, err
	}
	plan.ApprovalAmount = approvalAmount
	return &plan, nil
}

func (s *planService) GetUserPlans(wallet string) ([]models.Plan, error) {
	var plans []models.Plan
	err := s.db.Preload("TokenOut").
		Where("user_wallet = ? AND active = ?", wallet, true).
		Order("created_at DESC").
		Find(&plans).Error
	return plans, err
}

func (s *planService) ListExecutions(planHash string) ([]models.Execution, error) {
	var executions []models.Execution
	err := s.db.Where("plan_hash = ?", planHash).Order("created_at DESC").Find(&executions).Error
	return executions, err
}

// RecordExecution atomically sets last_executed_at and appends the ledger
// row. The UPDATE carries the expected previous last_executed_at in its
// WHERE clause, so of two concurrent executions only one can commit; the
// loser sees ErrPlanConflict instead of double-recording. A future recurring
// scheduler reuses the same write by passing the prior timestamp.
func (s *planService) RecordExecution(planHash string, prevLastExecutedAt, executedAt int64, record *models.Execution) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Plan{}).
			Where("plan_hash = ? AND last_executed_at = ?", planHash, prevLastExecutedAt).
			Update("last_executed_at", executedAt)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("plan %s: %w", planHash, ErrPlanConflict)
		}

		record.PlanHash = planHash
		return tx.Create(record).Error
	})
}

func findOrCreateUser(tx *gorm.DB, wallet string, fid *int64) (*models.User, error) {
	var user models.User
	query := tx.Where("wallet = ?", wallet)
	if fid != nil {
		query = tx.Where("wallet = ?", wallet).Or("fid = ?", *fid)
	}
	err := query.First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{Wallet: wallet, Fid: fid}
		if err := tx.Create(&user).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case user.Wallet != wallet:
		// Same fid re-appearing with a new wallet: keep the fid, move the wallet.
		if err := tx.Model(&user).Update("wallet", wallet).Error; err != nil {
			return nil, err
		}
		user.Wallet = wallet
	}
	return &user, nil
}
