package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/expr-lang/expr"

	"github.com/probeline/probeline/internal/document"
)

// MatchAll is the expression used when a watcher declares no filter.
const MatchAll = "true"

// TermQuery is the key of an equality query object such as
// {"term": {"status": "active"}}.
const TermQuery = "term"

type matcher func(env map[string]any) (bool, error)

type compiled struct {
	id    ID
	match matcher
}

// ExprEngine evaluates watcher filters against document bodies. A string
// filter is an expression in the expr language; a {"term": {...}} object
// matches documents whose fields equal every given value. The document
// identifier is exposed as _id.
type ExprEngine struct {
	mu      sync.RWMutex
	filters map[string][]compiled
}

// NewExprEngine creates an empty ExprEngine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{filters: make(map[string][]compiled)}
}

// Register compiles filter. Registering the same filter twice for a
// collection returns the same ID.
func (e *ExprEngine) Register(_ context.Context, index, collection string, filter any) (ID, error) {
	key, match, err := compile(filter)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFilterRegistration, err)
	}

	id := filterID(index, collection, key)
	ck := collectionKey(index, collection)

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.filters[ck] {
		if existing.id == id {
			return id, nil
		}
	}
	e.filters[ck] = append(e.filters[ck], compiled{id: id, match: match})
	return id, nil
}

// Test evaluates every filter of (index, collection). A filter whose
// evaluation fails does not match.
func (e *ExprEngine) Test(ctx context.Context, index, collection string, doc document.Document) ([]ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	filters := e.filters[collectionKey(index, collection)]
	e.mu.RUnlock()
	if len(filters) == 0 {
		return nil, nil
	}

	env := doc.Flatten()
	var matched []ID
	for _, f := range filters {
		if ok, err := f.match(env); err == nil && ok {
			matched = append(matched, f.id)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i] < matched[j] })
	return matched, nil
}

// compile returns a canonical key identifying filter and its matcher.
func compile(filter any) (string, matcher, error) {
	switch f := filter.(type) {
	case nil:
		return compileExpr(MatchAll)
	case string:
		if strings.TrimSpace(f) == "" {
			return compileExpr(MatchAll)
		}
		return compileExpr(f)
	case map[string]any:
		if len(f) == 0 {
			return compileExpr(MatchAll)
		}
		return compileTerms(f)
	default:
		return "", nil, fmt.Errorf("unsupported filter type %T", filter)
	}
}

func compileExpr(expression string) (string, matcher, error) {
	program, err := expr.Compile(expression, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return "", nil, fmt.Errorf("compile %q: %w", expression, err)
	}
	return expression, func(env map[string]any) (bool, error) {
		out, err := expr.Run(program, env)
		if err != nil {
			return false, err
		}
		ok, _ := out.(bool)
		return ok, nil
	}, nil
}

func compileTerms(query map[string]any) (string, matcher, error) {
	terms, ok := query[TermQuery].(map[string]any)
	if !ok || len(query) != 1 || len(terms) == 0 {
		return "", nil, fmt.Errorf("unsupported query: only a non-empty %q object is accepted", TermQuery)
	}
	for field, want := range terms {
		switch want.(type) {
		case nil, string, bool, int, int64, uint64, float64:
		default:
			return "", nil, fmt.Errorf("term %q: unsupported value %v", field, want)
		}
	}

	// map keys are sorted by encoding/json
	key, err := json.Marshal(query)
	if err != nil {
		return "", nil, fmt.Errorf("encode query: %w", err)
	}

	return string(key), func(env map[string]any) (bool, error) {
		for field, want := range terms {
			got, ok := lookup(env, field)
			if !ok || !equal(got, want) {
				return false, nil
			}
		}
		return true, nil
	}, nil
}

// lookup resolves field in env, following dots into nested objects when no
// key matches the field verbatim.
func lookup(env map[string]any, field string) (any, bool) {
	if v, ok := env[field]; ok {
		return v, true
	}
	var cur any = env
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func equal(got, want any) bool {
	if g, ok := number(got); ok {
		w, ok := number(want)
		return ok && g == w
	}
	return got == want
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func collectionKey(index, collection string) string {
	return index + "\x00" + collection
}

func filterID(index, collection, key string) ID {
	sum := xxhash.Sum64String(index + "\x00" + collection + "\x00" + key)
	return ID(fmt.Sprintf("%016x", sum))
}
