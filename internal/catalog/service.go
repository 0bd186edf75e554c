package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/postcommit"
)

// AssetRemover deletes a binary asset held by the object-storage gateway.
type AssetRemover interface {
	Unpin(ctx context.Context, cid string) error
}

type Service struct {
	store  Store
	assets AssetRemover
	after  *postcommit.Runner
	logger *zap.Logger
}

func NewService(store Store, assets AssetRemover, after *postcommit.Runner, logger *zap.Logger) *Service {
	return &Service{store: store, assets: assets, after: after, logger: logger}
}

func validateInput(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Invalid("name is required")
	}
	if in.Price.IsNegative() {
		return apperr.Invalid("price must not be negative")
	}
	if in.Stock < 0 {
		return apperr.Invalid("stock must not be negative")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in ProductInput) (*Product, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	p := Product{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		ImageCID:    in.ImageCID,
		Stock:       in.Stock,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, classify(err, "create product")
	}
	s.logger.Info("product created", zap.String("product_id", p.ID))
	return s.Get(ctx, p.ID)
}

func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, classify(err, "get product")
	}
	if p == nil {
		return nil, apperr.New(apperr.ErrNotFound, "product %s not found", id)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, category string) ([]Product, error) {
	ps, err := s.store.List(ctx, category)
	if err != nil {
		return nil, classify(err, "list products")
	}
	return ps, nil
}

// Update replaces the editable attributes. A replaced image is unpinned after
// the write commits.
func (s *Service) Update(ctx context.Context, id string, in ProductInput) (*Product, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *current
	next.Name = strings.TrimSpace(in.Name)
	next.Description = in.Description
	next.Price = in.Price
	next.Category = in.Category
	next.ImageCID = in.ImageCID
	next.Stock = in.Stock

	if err := s.store.Update(ctx, next); err != nil {
		return nil, classify(err, "update product")
	}
	if current.ImageCID != "" && current.ImageCID != next.ImageCID {
		s.unpinLater(current.ID, current.ImageCID)
	}
	return s.Get(ctx, id)
}

// Delete removes the product, then unpins its image without waiting.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.store.Delete(ctx, id)
	if err != nil {
		return classify(err, "delete product")
	}
	s.logger.Info("product deleted", zap.String("product_id", id))
	if p.ImageCID != "" {
		s.unpinLater(p.ID, p.ImageCID)
	}
	return nil
}

func (s *Service) unpinLater(productID, cid string) {
	s.after.Go("unpin-image", func(ctx context.Context) error {
		return s.assets.Unpin(ctx, cid)
	}, zap.String("product_id", productID), zap.String("cid", cid))
}

// classify keeps taxonomy errors and marks anything else as a store failure.
func classify(err error, op string) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Persistence(err, op)
}
