package reminder

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer renders Liquid message templates. Parsed templates are cached by
// source text since the same rule message is rendered for every recipient.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ amount | money }} -> 1250.00
	engine.RegisterFilter("money", func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	})
	// {{ recipient_name | default_name: "Parent" }}
	engine.RegisterFilter("default_name", func(v interface{}, fallback string) string {
		s := strings.TrimSpace(fmt.Sprint(v))
		if v == nil || s == "" {
			return fallback
		}
		return s
	})

	return &Renderer{engine: engine}
}

// Check reports whether src parses as a template.
func (r *Renderer) Check(src string) error {
	_, err := r.parse(src)
	return err
}

func (r *Renderer) Render(src string, vars map[string]interface{}) (string, error) {
	tpl, err := r.parse(src)
	if err != nil {
		return "", err
	}
	out, serr := tpl.RenderString(vars)
	if serr != nil {
		return "", fmt.Errorf("failed to render message: %w", serr)
	}
	return strings.TrimSpace(out), nil
}

func (r *Renderer) parse(src string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(src); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, serr := r.engine.ParseString(src)
	if serr != nil {
		return nil, fmt.Errorf("invalid message template: %w", serr)
	}
	r.cache.Store(src, tpl)
	return tpl, nil
}
