// Package access decides what a user may do with a form.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mbolis/quick-forms/model"
)

type Role int

const (
	None Role = iota
	Viewer
	Editor
	Owner
)

func (r Role) String() string {
	switch r {
	case Viewer:
		return "viewer"
	case Editor:
		return "editor"
	case Owner:
		return "owner"
	}
	return "none"
}

// ParseCollaboratorRole accepts the roles that can be granted to a collaborator.
func ParseCollaboratorRole(s string) (Role, bool) {
	switch s {
	case "editor":
		return Editor, true
	case "viewer":
		return Viewer, true
	}
	return None, false
}

type Capability int

const (
	EditForm Capability = iota
	LockForm
	ShareForm
	ViewResults
	ListCollaborators
	ManageCollaborators
	ViewResponse
	DeleteForm
)

var capabilityNames = [...]string{
	EditForm:            "edit this form",
	LockForm:            "lock this form",
	ShareForm:           "share this form",
	ViewResults:         "view the results of this form",
	ListCollaborators:   "list the collaborators of this form",
	ManageCollaborators: "manage the collaborators of this form",
	ViewResponse:        "view this response",
	DeleteForm:          "delete this form",
}

func (c Capability) String() string {
	return capabilityNames[c]
}

var minimumRole = [...]Role{
	EditForm:            Editor,
	LockForm:            Editor,
	ShareForm:           Editor,
	ViewResults:         Viewer,
	ListCollaborators:   Viewer,
	ManageCollaborators: Owner,
	ViewResponse:        Owner,
	DeleteForm:          Owner,
}

func (r Role) Can(c Capability) bool {
	return r != None && r >= minimumRole[c]
}

type Resolver struct {
	db *sql.DB
}

func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db}
}

// Resolve looks up the role of a user on a form. It is read on every call:
// a revoked collaborator loses access on their next request.
func (res *Resolver) Resolve(ctx context.Context, formID, userID int64) (Role, error) {
	var ownerID int64
	var collabRole sql.NullString
	err := res.db.
		QueryRowContext(ctx, `
			SELECT f.owner_id, c.role
			FROM form f
			LEFT JOIN collaborator c ON c.form_id = f.id AND c.user_id = ?
			WHERE f.id = ?`,
			userID,
			formID,
		).
		Scan(&ownerID, &collabRole)
	if errors.Is(err, sql.ErrNoRows) {
		return None, model.NotFound("form not found")
	}
	if err != nil {
		return None, fmt.Errorf("select role: %w", err)
	}

	if ownerID == userID {
		return Owner, nil
	}
	if collabRole.Valid {
		role, _ := ParseCollaboratorRole(collabRole.String)
		return role, nil
	}
	return None, nil
}

// Require resolves the role of a user and fails with Forbidden unless it
// grants capability.
func Require(ctx context.Context, res *Resolver, formID, userID int64, capability Capability) (Role, error) {
	role, err := res.Resolve(ctx, formID, userID)
	if err != nil {
		return None, err
	}
	if !role.Can(capability) {
		return role, model.Forbidden("you do not have permission to %s", capability)
	}
	return role, nil
}
