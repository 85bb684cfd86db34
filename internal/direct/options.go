package direct

import (
	"strconv"
	"strings"

	"github.com/samcharles93/convtune/internal/device"
)

// Options is an insertion-ordered set of compiler defines. It is rendered to
// "-D NAME=value" syntax only when a kernel is built.
type Options struct {
	names  []string
	values map[string]string
}

func NewOptions() *Options {
	return &Options{values: make(map[string]string)}
}

// Set adds or replaces a define. Replacing keeps the original position.
func (o *Options) Set(name string, value int) *Options {
	return o.SetString(name, strconv.Itoa(value))
}

// SetBool stores b as 1 or 0.
func (o *Options) SetBool(name string, b bool) *Options {
	if b {
		return o.Set(name, 1)
	}
	return o.Set(name, 0)
}

func (o *Options) SetString(name, value string) *Options {
	if _, ok := o.values[name]; !ok {
		o.names = append(o.names, name)
	}
	o.values[name] = value
	return o
}

func (o *Options) Get(name string) (string, bool) {
	v, ok := o.values[name]
	return v, ok
}

// Int returns a define parsed as an integer.
func (o *Options) Int(name string) (int, bool) {
	v, ok := o.values[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (o *Options) Len() int {
	return len(o.names)
}

// Names lists the defines in insertion order.
func (o *Options) Names() []string {
	return append([]string(nil), o.names...)
}

func (o *Options) Defines() []device.Define {
	out := make([]device.Define, 0, len(o.names))
	for _, n := range o.names {
		out = append(out, device.Define{Name: n, Value: o.values[n]})
	}
	return out
}

func (o *Options) String() string {
	var b strings.Builder
	for i, n := range o.names {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("-D ")
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(o.values[n])
	}
	return b.String()
}
