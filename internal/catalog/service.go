package catalog

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/shopledger/shopledger/internal/live"
	"github.com/shopledger/shopledger/internal/platform/httpx"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAll(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (Product, error)
}

// Service coordinates product operations.
type Service struct {
	repo     RepositoryPort
	bus      *live.Bus
	validate *validator.Validate
}

// NewService builds Service.
func NewService(repo RepositoryPort, bus *live.Bus) *Service {
	return &Service{repo: repo, bus: bus, validate: validator.New()}
}

// InsertProduct creates a product with the user-chosen starting stock.
func (s *Service) InsertProduct(ctx context.Context, req CreateProductRequest) (Product, error) {
	if err := s.validate.Struct(req); err != nil {
		return Product{}, fmt.Errorf("%s: %w", err, httpx.ErrValidation)
	}
	if req.Price.IsNegative() {
		return Product{}, fmt.Errorf("price must not be negative: %w", httpx.ErrValidation)
	}
	product := Product{
		Name:         req.Name,
		Stock:        req.Stock,
		InitialStock: req.Stock,
		Price:        req.Price,
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.InsertProduct(ctx, product)
		return err
	})
	if err != nil {
		return Product{}, fmt.Errorf("catalog: insert product: %w", err)
	}
	product.ID = id
	_ = s.bus.Publish(ctx, live.TopicCatalog)
	return product, nil
}

// UpdateProduct edits name, stock and price of an existing product.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req UpdateProductRequest) (Product, error) {
	if err := s.validate.Struct(req); err != nil {
		return Product{}, fmt.Errorf("%s: %w", err, httpx.ErrValidation)
	}
	if req.Price.IsNegative() {
		return Product{}, fmt.Errorf("price must not be negative: %w", httpx.ErrValidation)
	}
	product := Product{ID: id, Name: req.Name, Stock: req.Stock, Price: req.Price}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.UpdateProduct(ctx, product)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("catalog: product %d: %w", id, httpx.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	_ = s.bus.Publish(ctx, live.TopicCatalog)
	return s.repo.GetByID(ctx, id)
}

// GetAllProducts lists products with their summed sale totals.
func (s *Service) GetAllProducts(ctx context.Context) ([]Product, error) {
	return s.repo.GetAll(ctx)
}

// GetProductByID fetches one product.
func (s *Service) GetProductByID(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetByID(ctx, id)
}

// WatchProducts emits the full product list immediately and again after
// every committed write that touches products, including stock movements
// driven by sale writes. The channel closes when ctx ends.
func (s *Service) WatchProducts(ctx context.Context) (<-chan []Product, error) {
	ticks, err := s.bus.Watch(ctx, live.TopicCatalog)
	if err != nil {
		return nil, err
	}
	out := make(chan []Product, 1)
	go func() {
		defer close(out)
		for range ticks {
			products, err := s.repo.GetAll(ctx)
			if err != nil {
				return
			}
			select {
			case out <- products:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// WatchProduct emits a single product's state, terminating with an error at
// subscribe time when the product does not exist, and closing the stream if
// the product later disappears.
func (s *Service) WatchProduct(ctx context.Context, id int64) (<-chan Product, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	ticks, err := s.bus.Watch(ctx, live.TopicCatalog)
	if err != nil {
		return nil, err
	}
	out := make(chan Product, 1)
	go func() {
		defer close(out)
		for range ticks {
			product, err := s.repo.GetByID(ctx, id)
			if err != nil {
				// Terminates the stream, matching a deleted row under the
				// store-level cascade.
				return
			}
			select {
			case out <- product:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
