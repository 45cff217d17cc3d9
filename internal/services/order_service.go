package services

import (
	"context"
	"sort"
	"time"

	"bookstore/internal/logger"
	"bookstore/internal/models"
	"bookstore/internal/repositories"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// OrderQuery filters and pages an order listing. Page is 1-based.
type OrderQuery struct {
	Status *models.OrderStatus
	Page   int
	Size   int
}

func (q OrderQuery) normalize() OrderQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 {
		q.Size = defaultPageSize
	}
	if q.Size > maxPageSize {
		q.Size = maxPageSize
	}
	return q
}

// OrderPage is one page of an order listing.
type OrderPage struct {
	Items []models.Order `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

// OrderTracking is the chronological status timeline of an order.
type OrderTracking struct {
	OrderID string                      `json:"order_id"`
	Status  models.OrderStatus          `json:"status"`
	History []models.OrderStatusHistory `json:"history"`
}

// OrderService handles business logic related to orders. Every status change
// goes through transitionOrder.
type OrderService struct {
	store     *repositories.Store
	inventory *InventoryService
	carts     *CartService
	events    EventPublisher
	log       *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewOrderService creates a new OrderService. events may be nil.
func NewOrderService(store *repositories.Store, inventory *InventoryService, carts *CartService, events EventPublisher, log *zap.Logger) *OrderService {
	return &OrderService{
		store:     store,
		inventory: inventory,
		carts:     carts,
		events:    publisherOrNoop(events),
		log:       log,
		tracer:    otel.Tracer("services/order"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder turns the user's cart into a PENDING order. Stock reservation,
// order rows and the cart wipe commit together or not at all.
func (s *OrderService) CreateOrder(ctx context.Context, userID, shippingAddress string) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	var order *models.Order
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		cart, err := s.carts.ValidateCartForCheckout(ctx, tx, userID)
		if err != nil {
			return err
		}

		order = &models.Order{
			UserID:          userID,
			Status:          models.OrderStatusPending,
			TotalAmount:     decimal.Zero,
			ShippingAddress: shippingAddress,
		}

		// rows are locked in book id order so concurrent checkouts of the
		// same titles queue instead of deadlocking
		lines := append([]models.CartItem(nil), cart.Items...)
		sort.Slice(lines, func(i, j int) bool { return lines[i].BookID < lines[j].BookID })

		for _, line := range lines {
			book, err := s.inventory.ReserveStock(ctx, tx, line.BookID, line.Quantity)
			if err != nil {
				return err
			}
			order.Items = append(order.Items, models.OrderItem{
				BookID:          book.ID,
				Quantity:        line.Quantity,
				PriceAtPurchase: book.Price,
			})
			order.TotalAmount = order.TotalAmount.Add(book.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		if err := tx.Orders.Create(ctx, order); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, tx, order.ID, models.OrderStatusPending, "Order created"); err != nil {
			return err
		}
		return tx.Carts.ClearUser(ctx, userID)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Info(ctx, s.log, "order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)
	s.publish(ctx, EventOrderCreated, order, "")

	return s.store.Orders.GetByID(ctx, order.ID)
}

// GetOrder returns an order owned by userID.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	order, err := s.store.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "Order")
	}
	if order.UserID != userID {
		return nil, NotFound("Order")
	}
	return order, nil
}

// GetOrderAdmin returns any order.
func (s *OrderService) GetOrderAdmin(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "Order")
	}
	return order, nil
}

// CancelOrder cancels a PENDING order of the user and returns its stock.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CancelOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	var prev models.OrderStatus
	var order *models.Order
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		order, err = tx.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "Order")
		}
		if order.UserID != userID {
			return NotFound("Order")
		}
		if order.Status != models.OrderStatusPending {
			return BadRequest("Only pending orders can be cancelled")
		}
		prev = order.Status

		if err := s.inventory.releaseItems(ctx, tx, order.Items); err != nil {
			return err
		}
		return s.transitionOrder(ctx, tx, order, models.OrderStatusCancelled, "Cancelled by customer")
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.publish(ctx, EventOrderStatusChanged, order, prev)
	return s.store.Orders.GetByID(ctx, orderID)
}

// UpdateOrderStatus moves any order along the transition table. Cancelling a
// PENDING or PAID order returns its stock first.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, next models.OrderStatus, note string) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateOrderStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", string(next)),
	))
	defer span.End()

	var prev models.OrderStatus
	var order *models.Order
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		order, err = tx.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "Order")
		}
		prev = order.Status
		if !prev.CanTransitionTo(next) {
			return BadRequest("Cannot transition from %s to %s", prev, next)
		}

		if next == models.OrderStatusCancelled &&
			(prev == models.OrderStatusPending || prev == models.OrderStatusPaid) {
			if err := s.inventory.releaseItems(ctx, tx, order.Items); err != nil {
				return err
			}
		}
		return s.transitionOrder(ctx, tx, order, next, note)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.publish(ctx, EventOrderStatusChanged, order, prev)
	return s.store.Orders.GetByID(ctx, orderID)
}

// GetUserOrders lists the user's orders, newest first.
func (s *OrderService) GetUserOrders(ctx context.Context, userID string, q OrderQuery) (*OrderPage, error) {
	return s.list(ctx, userID, q)
}

// GetAllOrders lists every order, newest first.
func (s *OrderService) GetAllOrders(ctx context.Context, q OrderQuery) (*OrderPage, error) {
	return s.list(ctx, "", q)
}

func (s *OrderService) list(ctx context.Context, userID string, q OrderQuery) (*OrderPage, error) {
	q = q.normalize()
	orders, total, err := s.store.Orders.List(ctx, repositories.OrderFilter{
		UserID: userID,
		Status: q.Status,
		Offset: (q.Page - 1) * q.Size,
		Limit:  q.Size,
	})
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return &OrderPage{Items: orders, Total: total, Page: q.Page, Size: q.Size}, nil
}

// GetOrderTracking returns the status timeline of a user's order, oldest
// entry first.
func (s *OrderService) GetOrderTracking(ctx context.Context, orderID, userID string) (*OrderTracking, error) {
	order, err := s.GetOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.Orders.History(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderTracking{OrderID: order.ID, Status: order.Status, History: history}, nil
}

// transitionOrder validates next against the transition table, persists it
// and appends exactly one history row. The caller holds the order lock.
func (s *OrderService) transitionOrder(ctx context.Context, tx *repositories.Store, order *models.Order, next models.OrderStatus, note string) error {
	if !order.Status.CanTransitionTo(next) {
		return BadRequest("Cannot transition from %s to %s", order.Status, next)
	}

	order.Status = next
	order.UpdatedAt = s.now()
	if err := tx.Orders.UpdateStatus(ctx, order); err != nil {
		return err
	}
	return s.appendHistory(ctx, tx, order.ID, next, note)
}

func (s *OrderService) appendHistory(ctx context.Context, tx *repositories.Store, orderID string, status models.OrderStatus, note string) error {
	entry := &models.OrderStatusHistory{OrderID: orderID, Status: status, CreatedAt: s.now()}
	if note != "" {
		entry.Note = &note
	}
	return tx.Orders.AppendHistory(ctx, entry)
}

func (s *OrderService) publish(ctx context.Context, key string, order *models.Order, prev models.OrderStatus) {
	event := OrderEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     string(order.Status),
		PrevStatus: string(prev),
		Total:      order.TotalAmount,
		OccurredAt: s.now(),
	}
	if err := s.events.Publish(ctx, key, event); err != nil {
		logger.Warn(ctx, s.log, "failed to publish order event",
			zap.String("routing_key", key),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
}
