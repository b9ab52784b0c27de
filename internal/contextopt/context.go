package contextopt

import (
	"github.com/ksu-assistant/backend/internal/knowledge"
	"github.com/ksu-assistant/backend/pkg/utils"
)

// Context is the budgeted subset of a knowledge document used for one prompt.
type Context struct {
	order     []string
	sections  map[string]knowledge.Value
	relevance map[string]float64
}

func newContext() *Context {
	return &Context{sections: make(map[string]knowledge.Value)}
}

// NewContext builds a context from explicit sections, mainly for callers that
// bypass the optimizer.
func NewContext(sections map[string]knowledge.Value) *Context {
	c := newContext()
	for _, name := range knowledge.Map(sections).Keys() {
		c.put(name, sections[name])
	}
	return c
}

func (c *Context) put(name string, v knowledge.Value) {
	if _, ok := c.sections[name]; !ok {
		c.order = append(c.order, name)
	}
	c.sections[name] = v
}

func (c *Context) Get(name string) (knowledge.Value, bool) {
	v, ok := c.sections[name]
	return v, ok
}

func (c *Context) Has(name string) bool {
	_, ok := c.sections[name]
	return ok
}

// Names returns section names in selection order.
func (c *Context) Names() []string {
	return append([]string(nil), c.order...)
}

// Relevance returns the keyword match ratio of each relevant section.
func (c *Context) Relevance() map[string]float64 {
	out := make(map[string]float64, len(c.relevance))
	for k, v := range c.relevance {
		out[k] = v
	}
	return out
}

// JSON serializes the context with sorted keys.
func (c *Context) JSON() ([]byte, error) {
	return knowledge.Map(c.sections).MarshalJSON()
}

// Size is the serialized length in runes.
func (c *Context) Size() int {
	raw, err := c.JSON()
	if err != nil {
		return 0
	}
	return utils.RuneLen(string(raw))
}

// Fingerprint is the md5 of the serialized context.
func (c *Context) Fingerprint() (string, error) {
	raw, err := c.JSON()
	if err != nil {
		return "", err
	}
	return utils.HashBytes(raw), nil
}
