package api

import (
	"strings"

	"github.com/basefi-lab/dca-executor/internal/models"
	"github.com/basefi-lab/dca-executor/internal/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm/clause"
)

type createTokenRequest struct {
	Address   string `json:"address"`
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Decimals  int    `json:"decimals"`
	IsWrapped bool   `json:"isWrapped"`
	FeeTier   int    `json:"feeTier"`
}

// handleCreateToken registers token reference data. Upsert keyed on the
// lowercased address so re-adding a token refreshes its metadata.
func (s *APIServer) handleCreateToken(c *fiber.Ctx) error {
	var req createTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	if req.Address == "" || req.Symbol == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Missing required fields",
		})
	}
	if !utils.IsValidEthereumAddress(req.Address) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid token address",
		})
	}

	decimals := req.Decimals
	if decimals == 0 {
		decimals = 18
	}

	token := models.Token{
		Address:   strings.ToLower(req.Address),
		Symbol:    req.Symbol,
		Name:      req.Name,
		Decimals:  decimals,
		IsWrapped: req.IsWrapped,
		FeeTier:   req.FeeTier,
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"symbol", "name", "decimals", "is_wrapped", "fee_tier"}),
	}).Create(&token).Error
	if err != nil {
		s.log.WithError(err).Error("failed to create token")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to create token",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    token,
	})
}
