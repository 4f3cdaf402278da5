package revision

// Range represents a half-open window [low, high] of revisions previously
// split off from a node document (§3). Despite the half-open name inherited
// from the source design, membership is inclusive at both ends.
type Range struct {
	High Revision
	Low  Revision
}

// Includes reports whether r falls within [Low, High] inclusive, ordered via
// cmp (same-cluster comparisons may pass a nil cmp and fall back to natural
// order).
func (rg Range) Includes(r Revision, cmp *Comparator) bool {
	var loCmp, hiCmp int
	if cmp != nil {
		loCmp = cmp.Compare(r, rg.Low)
		hiCmp = cmp.Compare(r, rg.High)
	} else {
		loCmp = compareRaw(r, rg.Low)
		hiCmp = compareRaw(r, rg.High)
	}
	return loCmp >= 0 && hiCmp <= 0
}
