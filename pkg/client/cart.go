package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"
)

// ShippingFee is the flat RWF shipping charge for a non-empty cart
var ShippingFee = decimal.NewFromInt(5000)

// CartItem is one cart line. Lines are keyed by product, size and color.
type CartItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	ImageURL  string          `json:"imageUrl,omitempty"`
}

func (it CartItem) key() string {
	return it.ProductID + "::" + it.Size + "::" + it.Color
}

// CartPersister stores cart lines between runs
type CartPersister interface {
	Load() ([]CartItem, error)
	Save(items []CartItem) error
}

// Cart is the client-local cart. Nothing reaches the server until checkout.
type Cart struct {
	mu        sync.RWMutex
	items     []CartItem
	persister CartPersister
	listeners []func([]CartItem)
}

// NewCart loads the cart from p. A nil persister keeps the cart in memory.
func NewCart(p CartPersister) (*Cart, error) {
	c := &Cart{persister: p}
	if p == nil {
		return c, nil
	}
	items, err := p.Load()
	if err != nil {
		return c, fmt.Errorf("failed to load cart: %w", err)
	}
	for _, it := range items {
		if it.ProductID != "" && it.Quantity >= 1 {
			c.items = append(c.items, it)
		}
	}
	return c, nil
}

// Add adds qty of item, merging with an existing line of the same product,
// size and color. qty below 1 counts as 1.
func (c *Cart) Add(item CartItem, qty int) error {
	if qty < 1 {
		qty = 1
	}
	return c.mutate(func(items []CartItem) []CartItem {
		for i := range items {
			if items[i].key() == item.key() {
				items[i].Quantity += qty
				return items
			}
		}
		item.Quantity = qty
		return append(items, item)
	})
}

// Remove drops a line
func (c *Cart) Remove(productID, size, color string) error {
	key := CartItem{ProductID: productID, Size: size, Color: color}.key()
	return c.mutate(func(items []CartItem) []CartItem {
		out := items[:0]
		for _, it := range items {
			if it.key() != key {
				out = append(out, it)
			}
		}
		return out
	})
}

// UpdateQuantity sets a line's quantity; zero or less removes it
func (c *Cart) UpdateQuantity(productID, size, color string, qty int) error {
	if qty <= 0 {
		return c.Remove(productID, size, color)
	}
	key := CartItem{ProductID: productID, Size: size, Color: color}.key()
	return c.mutate(func(items []CartItem) []CartItem {
		for i := range items {
			if items[i].key() == key {
				items[i].Quantity = qty
			}
		}
		return items
	})
}

// Clear empties the cart
func (c *Cart) Clear() error {
	return c.mutate(func([]CartItem) []CartItem { return nil })
}

func (c *Cart) mutate(fn func([]CartItem) []CartItem) error {
	c.mu.Lock()
	c.items = fn(c.items)
	snapshot := append([]CartItem(nil), c.items...)
	listeners := append([]func([]CartItem){}, c.listeners...)
	// Saved under the lock so the file never goes back in time
	var err error
	if c.persister != nil {
		if serr := c.persister.Save(snapshot); serr != nil {
			err = fmt.Errorf("failed to save cart: %w", serr)
		}
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(append([]CartItem(nil), snapshot...))
	}
	return err
}

// OnChange registers fn to run with the new lines after every mutation
func (c *Cart) OnChange(fn func([]CartItem)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Items returns a copy of the lines
func (c *Cart) Items() []CartItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]CartItem(nil), c.items...)
}

// Count is the number of units in the cart
func (c *Cart) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// Subtotal is the sum of price times quantity
func (c *Cart) Subtotal() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sum := decimal.Zero
	for _, it := range c.items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Shipping is ShippingFee for a non-empty cart
func (c *Cart) Shipping() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.items) == 0 {
		return decimal.Zero
	}
	return ShippingFee
}

// Total is Subtotal plus Shipping
func (c *Cart) Total() decimal.Decimal {
	return c.Subtotal().Add(c.Shipping())
}

// Lines converts the cart to checkout lines
func (c *Cart) Lines() []OrderLine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lines := make([]OrderLine, 0, len(c.items))
	for _, it := range c.items {
		line := OrderLine{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price}
		if it.Size != "" {
			size := it.Size
			line.Size = &size
		}
		if it.Color != "" {
			color := it.Color
			line.Color = &color
		}
		lines = append(lines, line)
	}
	return lines
}

// FileCartPersister stores the cart as {"items": [...]} JSON
type FileCartPersister struct {
	path string
}

// NewFileCartPersister returns a persister writing to path
func NewFileCartPersister(path string) *FileCartPersister {
	return &FileCartPersister{path: path}
}

type cartFile struct {
	Items []CartItem `json:"items"`
}

func (p *FileCartPersister) Load() ([]CartItem, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f cartFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", p.path, err)
	}
	return f.Items, nil
}

func (p *FileCartPersister) Save(items []CartItem) error {
	if items == nil {
		items = []CartItem{}
	}
	data, err := json.Marshal(cartFile{Items: items})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}
