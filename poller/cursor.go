package poller

// Cursor is the highest Max message id already delivered. The zero value is
// unset, meaning nothing has been delivered yet and every id is admitted.
type Cursor struct {
	id  int64
	set bool
}

// Unset returns the empty cursor.
func Unset() Cursor { return Cursor{} }

// At returns a cursor positioned at id.
func At(id int64) Cursor { return Cursor{id: id, set: true} }

// Get returns the position and whether the cursor is set.
func (c Cursor) Get() (int64, bool) { return c.id, c.set }

// Admits reports whether a message with id is new relative to c.
func (c Cursor) Admits(id int64) bool { return !c.set || id > c.id }

// Advance moves the cursor forward to id; it never moves backwards.
func (c Cursor) Advance(id int64) Cursor {
	if c.Admits(id) {
		return At(id)
	}
	return c
}
