package cart

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrUnknownProduct is returned when a product name is not in the catalog.
var ErrUnknownProduct = errors.New("cart: unknown product")

// Product is a sellable item. Products are immutable once loaded.
type Product struct {
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Restricted bool            `json:"restricted"`
}

// Catalog is the ordered set of products offered by the kiosk.
type Catalog struct {
	products []Product
	byName   map[string]int
}

type catalogFile struct {
	Products []struct {
		Name       string `yaml:"name"`
		Price      string `yaml:"price"`
		Restricted bool   `yaml:"restricted"`
	} `yaml:"products"`
}

// NewCatalog builds a catalog from products. Names must be unique
// (case-insensitively) and prices non-negative.
func NewCatalog(products []Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		byName:   make(map[string]int, len(products)),
	}
	for _, p := range products {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, errors.New("cart: product with empty name")
		}
		key := strings.ToLower(name)
		if _, dup := c.byName[key]; dup {
			return nil, fmt.Errorf("cart: duplicate product %q", name)
		}
		if p.Price.IsNegative() {
			return nil, fmt.Errorf("cart: product %q has negative price %s", name, p.Price)
		}
		p.Name = name
		c.byName[key] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

// ParseCatalog decodes a YAML catalog:
//
//	products:
//	  - name: Beer
//	    price: "3.00"
//	    restricted: true
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("cart: parse catalog: %w", err)
	}
	products := make([]Product, 0, len(f.Products))
	for _, p := range f.Products {
		price, err := decimal.NewFromString(strings.TrimSpace(p.Price))
		if err != nil {
			return nil, fmt.Errorf("cart: product %q: bad price %q: %w", p.Name, p.Price, err)
		}
		products = append(products, Product{Name: p.Name, Price: price, Restricted: p.Restricted})
	}
	return NewCatalog(products)
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cart: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in demo catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Product{
		{Name: "Apple", Price: decimal.RequireFromString("0.50")},
		{Name: "Banana", Price: decimal.RequireFromString("0.30")},
		{Name: "Milk", Price: decimal.RequireFromString("1.20")},
		{Name: "Bread", Price: decimal.RequireFromString("2.00")},
		{Name: "Beer", Price: decimal.RequireFromString("3.00"), Restricted: true},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup finds a product by case-insensitive name.
func (c *Catalog) Lookup(name string) (Product, error) {
	i, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Product{}, fmt.Errorf("%w: %q", ErrUnknownProduct, name)
	}
	return c.products[i], nil
}

// Products returns the catalog in file order.
func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	return len(c.products)
}
