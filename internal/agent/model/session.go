package model

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// State is the position of a sender inside the dialogue.
type State string

const (
	StateStart              State = "start"
	StateRegisteringName    State = "registering_name"
	StateRegisteringPhone   State = "registering_phone"
	StateRegisteringAddress State = "registering_address"
	StateLoggingIn          State = "logging_in"
	StateAuthenticated      State = "authenticated"
	StateChoosingCategory   State = "choosing_category"
	StateBrowsingProduct    State = "browsing_product"
	StateChoosingDelivery   State = "choosing_delivery"
)

var states = []State{
	StateStart,
	StateRegisteringName,
	StateRegisteringPhone,
	StateRegisteringAddress,
	StateLoggingIn,
	StateAuthenticated,
	StateChoosingCategory,
	StateBrowsingProduct,
	StateChoosingDelivery,
}

// Valid reports whether s is one of the enumerated states.
func (s State) Valid() bool {
	return slices.Contains(states, s)
}

// Capturing reports whether the state consumes the next message as field input.
func (s State) Capturing() bool {
	switch s {
	case StateRegisteringName, StateRegisteringPhone, StateRegisteringAddress, StateLoggingIn:
		return true
	}
	return false
}

// User is a registered customer, keyed by phone.
type User struct {
	Phone   string `json:"phone"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// RegistrationDraft holds the fields collected before the user record is written.
type RegistrationDraft struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// BrowseCursor is the position inside an in-progress category walk.
type BrowseCursor struct {
	Category   string   `json:"category"`
	ProductIDs []string `json:"product_ids"`
	Index      int      `json:"index"`
}

// Current returns the product id under the cursor.
func (b *BrowseCursor) Current() (string, bool) {
	if b == nil || b.Index < 0 || b.Index >= len(b.ProductIDs) {
		return "", false
	}
	return b.ProductIDs[b.Index], true
}

// Exhausted reports whether the cursor moved past the last product.
func (b *BrowseCursor) Exhausted() bool {
	return b == nil || b.Index >= len(b.ProductIDs)
}

// CartLine is one product pending in an unfinalized order.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Category  string          `json:"category"`
}

// Subtotal is UnitPrice × Quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart keeps insertion order and at most one line per product id.
type Cart []CartLine

// Add merges line into the cart and returns the resulting line.
func (c *Cart) Add(line CartLine) CartLine {
	for i := range *c {
		if (*c)[i].ProductID == line.ProductID {
			(*c)[i].Quantity += line.Quantity
			return (*c)[i]
		}
	}
	*c = append(*c, line)
	return line
}

// Remove deletes the line for productID.
func (c *Cart) Remove(productID string) (CartLine, bool) {
	for i, l := range *c {
		if l.ProductID == productID {
			*c = slices.Delete(*c, i, i+1)
			return l, true
		}
	}
	return CartLine{}, false
}

// Quantity returns how many units of productID the cart holds.
func (c Cart) Quantity(productID string) int {
	for _, l := range c {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

// Total sums the line subtotals.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Session is the per-sender conversational state.
type Session struct {
	SenderID          string             `json:"sender_id"`
	State             State              `json:"state"`
	Cart              Cart               `json:"cart"`
	Profile           *User              `json:"profile,omitempty"`
	Draft             *RegistrationDraft `json:"draft,omitempty"`
	Browse            *BrowseCursor      `json:"browse,omitempty"`
	PendingCategories []string           `json:"pending_categories,omitempty"`
	PendingOrderID    string             `json:"pending_order_id,omitempty"`
	LastActivity      time.Time          `json:"last_activity"`
}

// NewSession returns a fresh session in the start state.
func NewSession(senderID string, now time.Time) *Session {
	return &Session{
		SenderID:     senderID,
		State:        StateStart,
		Cart:         Cart{},
		LastActivity: now,
	}
}

// Expired reports whether the session has been idle longer than idle.
func (s *Session) Expired(now time.Time, idle time.Duration) bool {
	if idle <= 0 || s.LastActivity.IsZero() {
		return false
	}
	return now.Sub(s.LastActivity) > idle
}

// Authenticated reports whether a profile is attached.
func (s *Session) Authenticated() bool {
	return s.Profile != nil && s.Profile.Phone != ""
}

// IdleState is where a session rests between commands.
func (s *Session) IdleState() State {
	if s.Authenticated() {
		return StateAuthenticated
	}
	return StateStart
}

// ClearTransient drops the draft, browse and delivery fields. Cart and profile survive.
func (s *Session) ClearTransient() {
	s.Draft = nil
	s.Browse = nil
	s.PendingCategories = nil
	s.PendingOrderID = ""
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Cart = slices.Clone(s.Cart)
	if out.Cart == nil {
		out.Cart = Cart{}
	}
	out.PendingCategories = slices.Clone(s.PendingCategories)
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	if s.Draft != nil {
		d := *s.Draft
		out.Draft = &d
	}
	if s.Browse != nil {
		b := *s.Browse
		b.ProductIDs = slices.Clone(s.Browse.ProductIDs)
		out.Browse = &b
	}
	return &out
}

// Normalize repairs fields that may be missing after decoding a stored copy.
func (s *Session) Normalize() {
	if !s.State.Valid() {
		s.State = s.IdleState()
	}
	if s.Cart == nil {
		s.Cart = Cart{}
	}
}
