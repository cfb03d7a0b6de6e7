package forms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mbolis/quick-forms/access"
	"github.com/mbolis/quick-forms/database"
	"github.com/mbolis/quick-forms/model"
)

// AddCollaborator grants role on a form to the user registered with email.
func (repo *Repository) AddCollaborator(ctx context.Context, formID int64, email string, role string) (*model.Collaborator, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || role == "" {
		return nil, model.Invalid("email and role are required")
	}
	if _, ok := access.ParseCollaboratorRole(role); !ok {
		return nil, model.Invalid("role must be editor or viewer")
	}

	var ownerID int64
	err := repo.db.
		QueryRowContext(ctx, "SELECT owner_id FROM form WHERE id = ?", formID).
		Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("form not found")
	}
	if err != nil {
		return nil, fmt.Errorf("select form: %w", err)
	}

	c := model.Collaborator{FormID: formID, Role: role, Email: email}
	err = repo.db.
		QueryRowContext(ctx, "SELECT id, name FROM user WHERE email = ?", email).
		Scan(&c.UserID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("no user registered with email %s", email)
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	if c.UserID == ownerID {
		return nil, model.Invalid("the owner of a form cannot be a collaborator")
	}

	err = repo.db.
		QueryRowContext(ctx,
			"INSERT INTO collaborator (form_id, user_id, role) VALUES (?, ?, ?) RETURNING id",
			formID,
			c.UserID,
			role,
		).
		Scan(&c.ID)
	if database.IsUniqueViolation(err) {
		return nil, model.Conflict("%s is already a collaborator", email)
	}
	if err != nil {
		return nil, fmt.Errorf("insert collaborator: %w", err)
	}
	return &c, nil
}

func (repo *Repository) ListCollaborators(ctx context.Context, formID int64) ([]model.Collaborator, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT c.id, c.form_id, c.user_id, c.role, u.name, u.email
		FROM collaborator c
		JOIN user u ON u.id = c.user_id
		WHERE c.form_id = ?
		ORDER BY c.id`,
		formID,
	)
	if err != nil {
		return nil, fmt.Errorf("select collaborators: %w", err)
	}
	defer rows.Close()

	collaborators := []model.Collaborator{}
	for rows.Next() {
		var c model.Collaborator
		err = rows.Scan(&c.ID, &c.FormID, &c.UserID, &c.Role, &c.Name, &c.Email)
		if err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		collaborators = append(collaborators, c)
	}
	return collaborators, rows.Err()
}

func (repo *Repository) RemoveCollaborator(ctx context.Context, formID, collaboratorID int64) error {
	res, err := repo.db.ExecContext(ctx,
		"DELETE FROM collaborator WHERE id = ? AND form_id = ?",
		collaboratorID,
		formID,
	)
	if err != nil {
		return fmt.Errorf("delete collaborator: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFound("collaborator not found")
	}
	return nil
}
