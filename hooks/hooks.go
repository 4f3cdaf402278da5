// Package hooks composes the ordered pre-/post-validation pipeline a
// NodeStoreBranch.Merge call runs a staged MutableTree through (§2 "Commit
// hook pipeline"): named pre-validation hooks run in registration order
// and any rejection short-circuits the rest; post-commit observers run
// after a successful commit and cannot themselves fail the transaction.
package hooks

import (
	"fmt"

	"github.com/contentgraph/corestore/document"
	"github.com/contentgraph/corestore/nodestore"
)

// Named wraps a nodestore.CommitHook with a name for error messages and
// diagnostics.
type Named struct {
	Name string
	Hook nodestore.CommitHook
}

// Pipeline is an ordered list of pre-validation hooks plus post-commit
// observers, built up via Register/RegisterPost and run as a unit from
// NodeStoreBranch.Merge.
type Pipeline struct {
	pre  []Named
	post []namedPost
}

type namedPost struct {
	name string
	fn   func(*document.CommitResult)
}

// New returns an empty pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// Register appends a pre-validation hook, run in registration order.
func (p *Pipeline) Register(name string, hook nodestore.CommitHook) {
	p.pre = append(p.pre, Named{Name: name, Hook: hook})
}

// RegisterPost appends a post-commit observer, run in registration order
// after Merge succeeds. Observers cannot reject the transaction; a panic
// or error inside one is the caller's responsibility to guard against.
func (p *Pipeline) RegisterPost(name string, fn func(*document.CommitResult)) {
	p.post = append(p.post, namedPost{name: name, fn: fn})
}

// PreHooks returns the registered pre-validation hooks in order, the
// shape nodestore.NodeStoreBranch.Merge expects.
func (p *Pipeline) PreHooks() []nodestore.CommitHook {
	out := make([]nodestore.CommitHook, len(p.pre))
	for i, n := range p.pre {
		out[i] = n.Hook
	}
	return out
}

// PostHook returns a single func(*document.CommitResult) that runs every
// registered observer in order, the shape Merge's postHook parameter
// expects.
func (p *Pipeline) PostHook() func(*document.CommitResult) {
	return func(result *document.CommitResult) {
		for _, n := range p.post {
			n.fn(result)
		}
	}
}

// RequiredProperty rejects any newly-created node missing name among its
// staged properties — a simple building block for mandatory-field
// policies (e.g. a primaryType on every node).
type RequiredProperty struct {
	Name string
}

// Validate implements nodestore.CommitHook.
func (h RequiredProperty) Validate(t *nodestore.MutableTree) error {
	for _, missing := range t.MissingProperty(h.Name) {
		return fmt.Errorf("hooks: path %q missing required property %q", missing, h.Name)
	}
	return nil
}
