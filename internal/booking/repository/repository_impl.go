package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/tripfolio/financeos/internal/booking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, booking *domain.Booking) error {
	return db.WithContext(ctx).Create(booking).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Booking, error) {
	var booking domain.Booking
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Find(&booking).Error
	if err != nil {
		return nil, err
	}
	if booking.ID == 0 {
		return nil, nil
	}
	return &booking, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, booking *domain.Booking) error {
	return db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("org_id = ? AND id = ?", booking.OrgID, booking.ID).
		Updates(map[string]any{
			"status":              string(booking.Status),
			"supplier_id":         booking.SupplierID,
			"sell_settlement":     booking.SellSettlement,
			"commission_reversed": booking.CommissionReversed,
			"supplier_finance":    booking.SupplierFinance,
			"updated_at":          booking.UpdatedAt,
		}).Error
}

func (r *repo) InsertFinancials(ctx context.Context, db *gorm.DB, financials *domain.BookingFinancials) error {
	return db.WithContext(ctx).Create(financials).Error
}

func (r *repo) FindFinancials(ctx context.Context, db *gorm.DB, orgID, bookingID snowflake.ID) (*domain.BookingFinancials, error) {
	var financials domain.BookingFinancials
	err := db.WithContext(ctx).
		Where("org_id = ? AND booking_id = ?", orgID, bookingID).
		Find(&financials).Error
	if err != nil {
		return nil, err
	}
	if financials.ID == 0 {
		return nil, nil
	}
	return &financials, nil
}

func (r *repo) UpdateFinancials(ctx context.Context, db *gorm.DB, financials *domain.BookingFinancials) error {
	return db.WithContext(ctx).
		Model(&domain.BookingFinancials{}).
		Where("org_id = ? AND booking_id = ?", financials.OrgID, financials.BookingID).
		Updates(map[string]any{
			"sell_total":      financials.SellTotal,
			"refunded_total":  financials.RefundedTotal,
			"penalty_total":   financials.PenaltyTotal,
			"refunds_applied": financials.RefundsApplied,
			"updated_at":      financials.UpdatedAt,
		}).Error
}
