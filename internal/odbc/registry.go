package odbc

import (
	"sync"

	"github.com/SimonWaldherr/tsodbc/internal/diag"
)

// Handle is the opaque value handed to ODBC applications. Zero is the null
// handle.
type Handle uintptr

// Registry maps handles to their objects. Handles are small integers, never
// Go pointers, so they can cross the C boundary.
type Registry struct {
	mu    sync.RWMutex
	next  Handle
	envs  map[Handle]*Environment
	conns map[Handle]*Connection
	stmts map[Handle]*Statement
	opts  []EnvOption
}

// NewRegistry returns an empty registry. opts apply to every environment
// it allocates.
func NewRegistry(opts ...EnvOption) *Registry {
	return &Registry{
		next:  1,
		envs:  make(map[Handle]*Environment),
		conns: make(map[Handle]*Connection),
		stmts: make(map[Handle]*Statement),
		opts:  opts,
	}
}

// Alloc implements SQLAllocHandle. parent is ignored for environments.
func (r *Registry) Alloc(t HandleType, parent Handle) (Handle, Return) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	switch t {
	case HandleEnv:
		r.envs[h] = NewEnvironment(r.opts...)
	case HandleDbc:
		env, ok := r.envs[parent]
		if !ok {
			return 0, InvalidHandle
		}
		r.conns[h] = newConnection(env, uint64(h))
	case HandleStmt:
		c, ok := r.conns[parent]
		if !ok {
			return 0, InvalidHandle
		}
		if !c.Connected() {
			c.begin()
			return 0, c.finish(diag.New(diag.StateNoConnection, "connection is not open"))
		}
		s := newStatement(c, uint64(h))
		c.attach(s)
		r.stmts[h] = s
	default:
		return 0, Error
	}
	r.next++
	return h, Success
}

// Env returns the environment behind h, or nil.
func (r *Registry) Env(h Handle) *Environment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.envs[h]
}

// Conn returns the connection behind h, or nil.
func (r *Registry) Conn(h Handle) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[h]
}

// Stmt returns the statement behind h, or nil.
func (r *Registry) Stmt(h Handle) *Statement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stmts[h]
}

// Free implements SQLFreeHandle. An environment with connections and an
// open connection cannot be freed (HY010). Freeing a connection frees its
// statements; freeing a statement closes its cursor. Handles leave the
// registry under the lock; cursors are closed after it is released since
// closing waits for an in-flight page request.
func (r *Registry) Free(t HandleType, h Handle) Return {
	switch t {
	case HandleEnv:
		r.mu.Lock()
		defer r.mu.Unlock()
		env, ok := r.envs[h]
		if !ok {
			return InvalidHandle
		}
		env.begin()
		for _, c := range r.conns {
			if c.env == env {
				return env.finish(diag.New(diag.StateFunctionSequence, "environment has allocated connections"))
			}
		}
		delete(r.envs, h)
		env.release()
		return Success
	case HandleDbc:
		r.mu.Lock()
		c, ok := r.conns[h]
		if !ok {
			r.mu.Unlock()
			return InvalidHandle
		}
		c.begin()
		if c.Connected() {
			r.mu.Unlock()
			return c.finish(diag.New(diag.StateFunctionSequence, "connection is still open"))
		}
		var freed []*Statement
		for sh, s := range r.stmts {
			if s.conn == c {
				freed = append(freed, s)
				delete(r.stmts, sh)
			}
		}
		delete(r.conns, h)
		r.mu.Unlock()
		for _, s := range freed {
			s.closeCursor()
		}
		return Success
	case HandleStmt:
		r.mu.Lock()
		s, ok := r.stmts[h]
		if ok {
			delete(r.stmts, h)
		}
		r.mu.Unlock()
		if !ok {
			return InvalidHandle
		}
		s.closeCursor()
		s.conn.detach(s)
		return Success
	}
	return Error
}

// diagSource is implemented by every handle type.
type diagSource interface {
	Diag(n int) (diag.Record, bool)
}

// Diag implements SQLGetDiagRec.
func (r *Registry) Diag(t HandleType, h Handle, n int) (diag.Record, Return) {
	var src diagSource
	r.mu.RLock()
	switch t {
	case HandleEnv:
		if e, ok := r.envs[h]; ok {
			src = e
		}
	case HandleDbc:
		if c, ok := r.conns[h]; ok {
			src = c
		}
	case HandleStmt:
		if s, ok := r.stmts[h]; ok {
			src = s
		}
	}
	r.mu.RUnlock()
	if src == nil {
		return diag.Record{}, InvalidHandle
	}
	if n < 1 {
		return diag.Record{}, Error
	}
	rec, ok := src.Diag(n)
	if !ok {
		return diag.Record{}, NoData
	}
	return rec, Success
}
