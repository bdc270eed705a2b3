package cascade

// Viewport models the client's visible area in post-sized slots. Offset is how many
// rendered rows the client has scrolled past.
type Viewport struct {
	Slots  int `json:"slots"`
	Offset int `json:"offset"`
}

// BottomVisible reports whether the bottom of a list of rows visible posts is inside
// the viewport, i.e. whether there is room for one more.
func (v Viewport) BottomVisible(rows int) bool {
	return rows-v.Offset < v.Slots
}
