package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/raqibtech/converse/internal/domain"
	"github.com/raqibtech/converse/internal/store"
)

// seedSchema validates the catalog seed file before anything is written
// to the database. A malformed seed aborts startup instead of leaving a
// half-loaded catalog behind.
const seedSchema = `{
	"type": "object",
	"required": ["products"],
	"properties": {
		"products": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id", "name", "price"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1},
					"category": {"type": "string"},
					"brand": {"type": "string"},
					"price": {"type": "number", "minimum": 0},
					"stock": {"type": "integer", "minimum": 0}
				}
			}
		},
		"customers": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string"},
					"state": {"type": "string"},
					"total_spent": {"type": "number", "minimum": 0}
				}
			}
		}
	}
}`

var compiledSeedSchema = jsonschema.MustCompileString("catalog_seed.json", seedSchema)

type seedFile struct {
	Products []struct {
		ID       string  `yaml:"id"`
		Name     string  `yaml:"name"`
		Category string  `yaml:"category"`
		Brand    string  `yaml:"brand"`
		Price    float64 `yaml:"price"`
		Stock    int     `yaml:"stock"`
	} `yaml:"products"`
	Customers []struct {
		ID         string  `yaml:"id"`
		Name       string  `yaml:"name"`
		State      string  `yaml:"state"`
		TotalSpent float64 `yaml:"total_spent"`
	} `yaml:"customers"`
}

// Seed loads the YAML catalog file at path into the repository. Existing
// records with matching ids are overwritten.
func Seed(ctx context.Context, repo store.Repository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog seed: %w", err)
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse catalog seed: %w", err)
	}
	if err := compiledSeedSchema.Validate(doc); err != nil {
		return fmt.Errorf("validate catalog seed: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("decode catalog seed: %w", err)
	}

	for _, p := range seed.Products {
		product := &domain.Product{
			ProductID:     p.ID,
			Name:          p.Name,
			Category:      p.Category,
			Brand:         p.Brand,
			UnitPrice:     p.Price,
			StockQuantity: p.Stock,
		}
		if err := repo.UpsertProduct(ctx, product); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}

	for _, c := range seed.Customers {
		customer := &domain.Customer{
			CustomerID: c.ID,
			Name:       c.Name,
			State:      c.State,
			TotalSpent: c.TotalSpent,
			Tier:       domain.TierFor(c.TotalSpent),
		}
		if err := repo.UpsertCustomer(ctx, customer); err != nil {
			return fmt.Errorf("seed customer %s: %w", c.ID, err)
		}
	}

	slog.Info("catalog seeded", "products", len(seed.Products), "customers", len(seed.Customers))
	return nil
}

// SeedIfEmpty loads the seed file only when the catalog has no products.
func SeedIfEmpty(ctx context.Context, repo store.Repository, path string) error {
	n, err := repo.CountProducts(ctx)
	if err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if n > 0 {
		slog.Info("catalog already populated, skipping seed", "products", n)
		return nil
	}
	if path == "" {
		slog.Warn("catalog is empty and no seed file configured")
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Warn("catalog is empty and seed file missing", "path", path)
		return nil
	}
	return Seed(ctx, repo, path)
}
