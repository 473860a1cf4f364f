package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/crossover-trader/internal/stoploss"
)

// position is an open holding and the stop that guards it
type position struct {
	symbol     string
	shares     int64
	entryPrice decimal.Decimal
	entryDate  time.Time
	stop       *stoploss.Manager
}

func (p *position) value(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(p.shares))
}

func (p *position) cost() decimal.Decimal {
	return p.value(p.entryPrice)
}

// book holds open positions in entry order. Its capacity is fixed at
// construction and add refuses to grow past it.
type book struct {
	slots []*position
}

func newBook(capacity int) *book {
	return &book{slots: make([]*position, 0, capacity)}
}

func (b *book) len() int { return len(b.slots) }

func (b *book) full() bool { return len(b.slots) == cap(b.slots) }

func (b *book) get(symbol string) *position {
	for _, p := range b.slots {
		if p.symbol == symbol {
			return p
		}
	}
	return nil
}

// add inserts p. Callers check get and full first; add only enforces them.
func (b *book) add(p *position) bool {
	if b.full() || b.get(p.symbol) != nil {
		return false
	}
	b.slots = append(b.slots, p)
	return true
}

func (b *book) remove(symbol string) {
	for i, p := range b.slots {
		if p.symbol == symbol {
			copy(b.slots[i:], b.slots[i+1:])
			b.slots[len(b.slots)-1] = nil
			b.slots = b.slots[:len(b.slots)-1]
			return
		}
	}
}

// all returns the positions in entry order. The slice is a copy; the
// positions are shared.
func (b *book) all() []*position {
	return append([]*position(nil), b.slots...)
}
