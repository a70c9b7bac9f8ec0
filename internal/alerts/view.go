package alerts

import "errors"

var ErrUnknownAlert = errors.New("unknown alert")

// View is one console's alert page: a fixed card set and at most one
// expanded card. It is not safe for concurrent use; the owning console
// serializes access.
type View struct {
	cards    []Card
	expanded int
	open     bool
}

func NewView(cards []Card) *View {
	return &View{cards: append([]Card(nil), cards...)}
}

func (v *View) Cards(r Range, criticalOnly bool) []Card {
	return Filter(v.cards, r, criticalOnly)
}

// Expand opens id, replacing any open card.
func (v *View) Expand(id int) (Card, error) {
	for _, c := range v.cards {
		if c.ID == id {
			v.expanded, v.open = id, true
			return c, nil
		}
	}
	return Card{}, ErrUnknownAlert
}

func (v *View) Collapse() {
	v.expanded, v.open = 0, false
}

func (v *View) Expanded() (Card, bool) {
	if !v.open {
		return Card{}, false
	}
	for _, c := range v.cards {
		if c.ID == v.expanded {
			return c, true
		}
	}
	return Card{}, false
}
