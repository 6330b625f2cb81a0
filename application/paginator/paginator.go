// Package paginator adapts an entity service to page based listing.
package paginator

import (
	"context"
	"fmt"
	"math"

	"github.com/creasty/defaults"

	"entityservice/application/entityservice"
	"entityservice/domain/criteria"
	"entityservice/domain/shared"
)

// Source the part of the entity service the adapter needs.
type Source interface {
	CountBy(ctx context.Context, c *criteria.Criteria) (int64, error)
	FindBy(ctx context.Context, c *criteria.Criteria) (*entityservice.Result, error)
}

// Config page size limits.
type Config struct {
	DefaultPageSize int `default:"20" mapstructure:"default_page_size" validate:"gte=1"`
	MaxPageSize     int `default:"100" mapstructure:"max_page_size" validate:"gtefield=DefaultPageSize"`
}

// DefaultConfig returns the config with every default applied.
func DefaultConfig() Config {
	var cfg Config
	_ = defaults.Set(&cfg)
	return cfg
}

// Params requested page, 1-based.
type Params struct {
	Page int `json:"page,omitempty"`
	Size int `json:"size,omitempty"`
}

// Normalize applies defaults and limits.
func (p *Params) Normalize(cfg Config) {
	if p.Size <= 0 {
		p.Size = cfg.DefaultPageSize
	}
	if cfg.MaxPageSize > 0 && p.Size > cfg.MaxPageSize {
		p.Size = cfg.MaxPageSize
	}
	if p.Page <= 0 {
		p.Page = 1
	}
}

// Offset first row of the page, math.MaxInt when it does not fit an int.
func (p Params) Offset() int {
	if p.Page <= 1 || p.Size <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Size
}

func (p Params) String() string { return fmt.Sprintf("page=%d size=%d", p.Page, p.Size) }

// Page one page of entities plus navigation metadata.
type Page struct {
	Items   []shared.Entity `json:"items"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	Size    int             `json:"size"`
	Pages   int             `json:"pages"`
	HasNext bool            `json:"has_next"`
	HasPrev bool            `json:"has_prev"`
}

// Adapter lists the entities matching a criteria page by page.
type Adapter struct {
	source   Source
	criteria *criteria.Criteria
	cfg      Config
}

// NewAdapter creates an adapter; a zero cfg gets the defaults.
func NewAdapter(source Source, c *criteria.Criteria, cfg Config) *Adapter {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Adapter{source: source, criteria: c, cfg: cfg}
}

// Count total number of matching entities.
func (a *Adapter) Count(ctx context.Context) (int64, error) {
	return a.source.CountBy(ctx, a.criteria.WithoutPaging())
}

// Items returns limit entities starting at offset.
func (a *Adapter) Items(ctx context.Context, offset, limit int) ([]shared.Entity, error) {
	c := a.criteria.WithFirstResult(offset).WithMaxResults(limit)
	res, err := a.source.FindBy(ctx, c)
	if err != nil {
		return nil, err
	}
	return res.Entities(), nil
}

// Page loads the page described by params.
func (a *Adapter) Page(ctx context.Context, params Params) (*Page, error) {
	params.Normalize(a.cfg)

	total, err := a.Count(ctx)
	if err != nil {
		return nil, err
	}

	items := []shared.Entity{}
	if offset := params.Offset(); int64(offset) < total {
		if items, err = a.Items(ctx, offset, params.Size); err != nil {
			return nil, err
		}
	}

	pages := int(math.Ceil(float64(total) / float64(params.Size)))
	if pages < 1 {
		pages = 1
	}
	return &Page{
		Items:   items,
		Total:   total,
		Page:    params.Page,
		Size:    params.Size,
		Pages:   pages,
		HasNext: params.Page < pages,
		HasPrev: params.Page > 1,
	}, nil
}
