package access

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/mbolis/quick-forms/database"
	"github.com/mbolis/quick-forms/model"
)

func TestCapabilityTable(t *testing.T) {
	all := []Capability{EditForm, LockForm, ShareForm, ViewResults, ListCollaborators, ManageCollaborators, ViewResponse, DeleteForm}
	granted := map[Role][]Capability{
		Owner:  all,
		Editor: {EditForm, LockForm, ShareForm, ViewResults, ListCollaborators},
		Viewer: {ViewResults, ListCollaborators},
		None:   nil,
	}

	for role, caps := range granted {
		allowed := map[Capability]bool{}
		for _, c := range caps {
			allowed[c] = true
		}
		for _, c := range all {
			if role.Can(c) != allowed[c] {
				t.Errorf("%s.Can(%s) = %v", role, c, role.Can(c))
			}
		}
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func exec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatal(err)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	exec(t, db, `INSERT INTO user (id, name, email, password_hash) VALUES
		(1, 'owner', 'o@example.com', x''),
		(2, 'editor', 'e@example.com', x''),
		(3, 'viewer', 'v@example.com', x''),
		(4, 'stranger', 's@example.com', x'')`)
	exec(t, db, `INSERT INTO form (id, owner_id, title, share_token) VALUES (10, 1, 'f', 't')`)
	exec(t, db, `INSERT INTO collaborator (form_id, user_id, role) VALUES (10, 2, 'editor'), (10, 3, 'viewer')`)

	res := NewResolver(db)
	for userID, want := range map[int64]Role{1: Owner, 2: Editor, 3: Viewer, 4: None} {
		role, err := res.Resolve(ctx, 10, userID)
		if err != nil {
			t.Fatal(err)
		}
		if role != want {
			t.Errorf("user %d: %s, want %s", userID, role, want)
		}
	}

	if _, err := res.Resolve(ctx, 99, 1); !model.IsKind(err, model.KindNotFound) {
		t.Errorf("missing form: %v", err)
	}

	if _, err := Require(ctx, res, 10, 2, DeleteForm); !model.IsKind(err, model.KindForbidden) {
		t.Errorf("editor deleting: %v", err)
	}
	if _, err := Require(ctx, res, 10, 3, ViewResults); err != nil {
		t.Errorf("viewer reading results: %v", err)
	}

	// revocation takes effect immediately
	exec(t, db, `DELETE FROM collaborator WHERE user_id = 3`)
	if _, err := Require(ctx, res, 10, 3, ViewResults); !model.IsKind(err, model.KindForbidden) {
		t.Errorf("revoked viewer: %v", err)
	}
}
