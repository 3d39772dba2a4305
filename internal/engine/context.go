package engine

// Context is the key/value bag threaded through node execution. Each node
// receives the current context and produces a new one; handlers never mutate
// their input. Branches forked from one node each get their own copy.
type Context map[string]any

// NewContext returns an empty execution context.
func NewContext() Context {
	return Context{}
}

// Clone returns a shallow copy one level deep. Nested values are shared;
// handlers treat them as read-only by convention.
func (c Context) Clone() Context {
	cp := make(Context, len(c))
	for k, v := range c {
		cp[k] = v
	}
	return cp
}

// With returns a copy of the context with one key set.
func (c Context) With(key string, value any) Context {
	cp := c.Clone()
	cp[key] = value
	return cp
}

// Merge returns a copy of the context with all given values set.
func (c Context) Merge(values map[string]any) Context {
	cp := c.Clone()
	for k, v := range values {
		cp[k] = v
	}
	return cp
}

// Bool reads a key as a bool; missing or non-bool values return false.
func (c Context) Bool(key string) bool {
	b, _ := c[key].(bool)
	return b
}
