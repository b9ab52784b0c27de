package knowledge

import "context"

// PromptContext is what the knowledge side hands to the answer pipeline.
type PromptContext struct {
	Text     string
	Document *Document
}

type Provider interface {
	ContextForPrompt(ctx context.Context, query string) (*PromptContext, error)
}

// StaticProvider serves one document loaded at startup.
type StaticProvider struct {
	doc *Document
}

func NewStaticProvider(doc *Document) *StaticProvider {
	return &StaticProvider{doc: doc}
}

func (p *StaticProvider) ContextForPrompt(ctx context.Context, query string) (*PromptContext, error) {
	if p.doc == nil {
		return nil, ErrNotFound
	}
	return &PromptContext{
		Text:     p.doc.Summary(),
		Document: p.doc,
	}, nil
}

func (p *StaticProvider) Document() *Document {
	return p.doc
}
