// Package cart holds the product catalog and the per-session shopping cart.
package cart

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Entry is one scanned unit of a product.
type Entry struct {
	Product Product `json:"product"`
}

// Cart is an ordered list of scanned entries. It is owned by a single
// checkout session and is not safe for concurrent use.
type Cart struct {
	entries []Entry
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// Scan appends one entry for p. Deduplicating repeated scan gestures is the
// caller's job.
func (c *Cart) Scan(p Product) {
	c.entries = append(c.entries, Entry{Product: p})
}

// Total sums the entry prices.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range c.entries {
		total = total.Add(e.Product.Price)
	}
	return total
}

// RemoveByName drops every entry whose product name matches name without
// regard to case, and returns how many were removed.
func (c *Cart) RemoveByName(name string) int {
	kept := c.entries[:0]
	removed := 0
	for _, e := range c.entries {
		if strings.EqualFold(e.Product.Name, name) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// clear the tail so dropped products aren't retained
	for i := len(kept); i < len(c.entries); i++ {
		c.entries[i] = Entry{}
	}
	c.entries = kept
	return removed
}

// HasRestrictedItem reports whether any entry is age-restricted.
func (c *Cart) HasRestrictedItem() bool {
	for _, e := range c.entries {
		if e.Product.Restricted {
			return true
		}
	}
	return false
}

// RestrictedNames returns the distinct names of restricted products in cart
// order.
func (c *Cart) RestrictedNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, e := range c.entries {
		if !e.Product.Restricted {
			continue
		}
		key := strings.ToLower(e.Product.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, e.Product.Name)
	}
	return names
}

// Entries returns a copy of the entries in scan order.
func (c *Cart) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Cart) Len() int {
	return len(c.entries)
}
