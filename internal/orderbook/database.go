package orderbook

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/finai-nexus/execution-core/internal/types"
)

// GormStore persists ledger state through GORM. Every write is an upsert
// keyed on the order ID, so replayed state changes stay append-safe.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) SaveOrder(order *types.Order) error {
	record := *order
	record.Model = gorm.Model{}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		UpdateAll: true,
	}).Create(&record).Error
}

// LoadActiveOrders returns every persisted order not yet in a terminal state.
func (s *GormStore) LoadActiveOrders() ([]types.Order, error) {
	var orders []types.Order
	err := s.db.Where("status IN ?", []types.OrderStatus{
		types.StatusPending,
		types.StatusSubmitted,
		types.StatusPartiallyFilled,
	}).Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
