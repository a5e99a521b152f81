package services

import (
	"slices"

	"github.com/google/uuid"

	"milkbook/internal/core"
)

// Session is one editing pass over a materialized month. It replaces a
// process-wide edit counter: each open grid carries its own snapshot and
// revision.
type Session struct {
	ID        string
	Selection core.MonthSelection
	UnitPrice core.UnitPrice
	Original  []core.DailyRecord
	Revision  int
}

func NewSession(sheet core.MonthSheet, price core.UnitPrice) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Selection: sheet.Selection,
		UnitPrice: price,
		Original:  slices.Clone(sheet.Records),
	}
}

// Edited reports whether current differs from the last saved snapshot.
func (s *Session) Edited(current []core.DailyRecord) bool {
	return core.Changed(s.Original, current)
}

// Saved adopts current as the new snapshot.
func (s *Session) Saved(current []core.DailyRecord) {
	s.Original = slices.Clone(current)
	s.Revision++
}
