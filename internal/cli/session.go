package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/clocktree/internal/ir"
	"github.com/roach88/clocktree/internal/store"
)

// resolveSession looks up the session a command should read. An empty id
// selects the most recent session in the database.
func resolveSession(ctx context.Context, st *store.Store, id string) (ir.Session, error) {
	var (
		sess ir.Session
		err  error
	)
	if id == "" {
		sess, err = st.LatestSession(ctx)
	} else {
		sess, err = st.ReadSession(ctx, id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		if id == "" {
			return ir.Session{}, NewExitError(ExitCommandError, "database has no sessions")
		}
		return ir.Session{}, NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", id))
	}
	if err != nil {
		return ir.Session{}, WrapExitError(ExitCommandError, "failed to read session", err)
	}
	return sess, nil
}
