package backup

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/d3zd3z/cdump/core/chunk"
	"github.com/d3zd3z/cdump/core/kind"
	"github.com/d3zd3z/cdump/core/oid"
)

var (
	// ErrMissingChunk is returned by Walk when the root OID is not
	// present in the pool.
	ErrMissingChunk = errors.New("backup: missing chunk")
	// ErrUnsupportedKind is returned by Walk when no handler is
	// registered for the visited chunk's kind.
	ErrUnsupportedKind = errors.New("backup: unsupported kind")
	// ErrPrune is the control-flow signal a Visitor returns to skip
	// descent into the node just visited, without aborting the overall
	// walk. It plays the role filepath.SkipDir plays for filepath.Walk:
	// a sentinel recognized only by the traversal that issued the call.
	ErrPrune = errors.New("backup: prune")
)

// Finder is the subset of pool.Pool that the traversal layer depends on.
type Finder interface {
	Find(oid.OID) (*chunk.Chunk, error)
}

// Visitor is invoked once per traversed node. Backup corresponds to the
// built-in "back" kind; additional node types can be wired in by
// registering further Handlers via Walker.Register and adding matching
// methods to a richer Visitor implementation.
//
// Returning ErrPrune (or an error wrapping it) stops descent into this
// node's children without failing the walk; any other non-nil error
// aborts the walk entirely.
type Visitor interface {
	Backup(w *Walker, root oid.OID, date int64, props map[string]string) error
}

// Handler decodes a chunk of a registered kind and invokes the visitor,
// recursing into children as appropriate.
type Handler func(w *Walker, ch *chunk.Chunk, visitor Visitor) error

// Walker holds the kind-dispatch registry and the OID stack tracking the
// path from the traversal root to the node currently being visited.
type Walker struct {
	pool     Finder
	registry map[kind.Kind]Handler
	stack    []oid.OID
}

// NewWalker returns a Walker with the built-in "back" handler registered.
func NewWalker(pool Finder) *Walker {
	w := &Walker{
		pool:     pool,
		registry: make(map[kind.Kind]Handler),
	}
	w.Register(kind.MustNew("back"), handleBack)
	return w
}

// Register adds or replaces the handler for k.
func (w *Walker) Register(k kind.Kind, h Handler) {
	w.registry[k] = h
}

// Stack returns the OID path from the traversal root to the node
// currently being visited, root first.
func (w *Walker) Stack() []oid.OID {
	out := make([]oid.OID, len(w.stack))
	copy(out, w.stack)
	return out
}

// Walk finds root in the pool, dispatches to the handler registered for
// its kind, and recurses per that handler's own logic. A Prune returned
// by the visitor is caught here and converted to a nil error; any other
// error propagates to the caller.
func (w *Walker) Walk(visitor Visitor, root oid.OID) error {
	ch, err := w.pool.Find(root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMissingChunk, root, err)
	}

	h, ok := w.registry[ch.Kind()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, ch.Kind())
	}

	w.stack = append(w.stack, root)
	err = h(w, ch, visitor)

	// Only pop on normal completion or a caught Prune, matching
	// decoder.cc: a real error unwinds past the visitor's pop_oid and
	// leaves the OID on the stack for the caller to inspect.
	if errors.Is(err, ErrPrune) {
		w.stack = w.stack[:len(w.stack)-1]
		return nil
	}
	if err != nil {
		return err
	}
	w.stack = w.stack[:len(w.stack)-1]
	return nil
}

// handleBack decodes a "back" chunk's property record, extracts the
// reserved _date and hash keys, invokes visitor.Backup with everything
// else, and recurses into the child unless the visitor prunes.
func handleBack(w *Walker, ch *chunk.Chunk, visitor Visitor) error {
	data, err := ch.Data()
	if err != nil {
		return err
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		return err
	}

	var (
		date    int64
		childID oid.OID
		haveID  bool
	)
	props := make(map[string]string, len(rec.Entries))
	for _, e := range rec.Entries {
		switch e.Key {
		case "_date":
			d, err := strconv.ParseInt(e.Value, 10, 64)
			if err != nil {
				return fmt.Errorf("backup: bad _date value %q: %w", e.Value, err)
			}
			date = d
		case "hash":
			id, err := oid.FromHex(e.Value)
			if err != nil {
				return fmt.Errorf("backup: bad hash value %q: %w", e.Value, err)
			}
			childID = id
			haveID = true
		default:
			props[e.Key] = e.Value
		}
	}
	if !haveID {
		return fmt.Errorf("backup: back record missing hash key")
	}

	if err := visitor.Backup(w, childID, date, props); err != nil {
		return err
	}
	return w.Walk(visitor, childID)
}
