package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// ToolOutput replaces a function call in the reply.
type ToolOutput struct {
	// Text is the reply without embedded media. It is what gets stored,
	// tracked and sent back upstream as history.
	Text string
	// Markdown is the reply as the learner sees it; empty means Text.
	Markdown string
	// Media holds inline parts (generated images) kept next to Text.
	Media []*genai.Part
}

func (o ToolOutput) Display() string {
	if o.Markdown != "" {
		return o.Markdown
	}
	return o.Text
}

// ToolHandler serves one function the model may call.
type ToolHandler interface {
	Declaration() *genai.FunctionDeclaration
	Invoke(ctx context.Context, args map[string]any) (ToolOutput, error)
	// Explain turns an Invoke failure into a message for the learner.
	Explain(args map[string]any, err error) string
}

type ToolRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ToolHandler
}

func NewToolRegistry(handlers ...ToolHandler) *ToolRegistry {
	r := &ToolRegistry{handlers: make(map[string]ToolHandler)}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

func (r *ToolRegistry) Register(h ToolHandler) {
	name := strings.TrimSpace(h.Declaration().Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *ToolRegistry) Get(name string) (ToolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.TrimSpace(name)]
	return h, ok
}

// Tools returns the declarations in a stable order, or nil when empty.
func (r *ToolRegistry) Tools() []*genai.Tool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	decls := make([]*genai.FunctionDeclaration, 0, len(r.handlers))
	for _, h := range r.handlers {
		decls = append(decls, h.Declaration())
	}
	r.mu.RUnlock()
	if len(decls) == 0 {
		return nil
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Dispatch runs the handler for call. The returned output is always suitable
// for the learner; err reports what went wrong, if anything.
func (r *ToolRegistry) Dispatch(ctx context.Context, call *genai.FunctionCall) (ToolOutput, error) {
	var h ToolHandler
	ok := false
	if r != nil {
		h, ok = r.Get(call.Name)
	}
	if !ok {
		return ToolOutput{Text: fmt.Sprintf("I tried to use a tool called %q that isn't available right now, so I couldn't finish that part of the answer. Could you rephrase what you need?", call.Name)},
			fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}

	out, err := h.Invoke(ctx, call.Args)
	if err != nil {
		return ToolOutput{Text: h.Explain(call.Args, err)}, err
	}
	return out, nil
}
