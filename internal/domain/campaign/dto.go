package campaign

import "time"

// CreateCampaignRequest is the API payload for creating a campaign.
// Decimal fields travel as strings to avoid float precision loss.
type CreateCampaignRequest struct {
	Name               string                 `json:"name" binding:"required"`
	Description        string                 `json:"description"`
	StartsAt           time.Time              `json:"starts_at" binding:"required"`
	EndsAt             time.Time              `json:"ends_at" binding:"required"`
	DiscountType       string                 `json:"discount_type" binding:"required"`
	DiscountValue      string                 `json:"discount_value" binding:"required"`
	DefaultTicketCount int                    `json:"default_ticket_count"`
	GenerationStrategy string                 `json:"generation_strategy" binding:"required"`
	TargetCouponCount  int                    `json:"target_coupon_count"`
	MinPurchaseAmount  string                 `json:"min_purchase_amount"`
	MaxPurchaseAmount  string                 `json:"max_purchase_amount"`
	AllowedFuelTypes   []string               `json:"allowed_fuel_types"`
	AllowedStationIDs  []string               `json:"allowed_station_ids"`
	ExcludedStationIDs []string               `json:"excluded_station_ids"`
	MaxUses            int                    `json:"max_uses"`
	MaxUsesPerUser     int                    `json:"max_uses_per_user"`
	CooldownMinutes    int                    `json:"cooldown_minutes"`
	Metadata           map[string]interface{} `json:"metadata"`
}

// ChangeStatusRequest moves a campaign to a target status.
type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// GenerateCouponsRequest mints a batch of coupons for a campaign.
type GenerateCouponsRequest struct {
	Count            int    `json:"count" binding:"required,min=1"`
	OverrideDiscount string `json:"override_discount"`
	OverrideType     string `json:"override_discount_type"`
	OverrideTickets  *int   `json:"override_ticket_count"`
}

// Metrics is the derived read model for a campaign's progress.
type Metrics struct {
	CampaignID           string  `json:"campaign_id"`
	Status               Status  `json:"status"`
	GeneratedCouponCount int     `json:"generated_coupon_count"`
	UsedCouponCount      int     `json:"used_coupon_count"`
	TargetCouponCount    int     `json:"target_coupon_count"`
	ProgressPercent      float64 `json:"progress_percent"`
	UsageRate            float64 `json:"usage_rate"`
}
