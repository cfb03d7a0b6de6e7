package httpx

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/oauth"
	"github.com/mbolis/quick-forms/users"
)

// RefreshTTL bounds how long a refresh token stays redeemable.
const RefreshTTL = 30 * 24 * time.Hour

type credentialsVerifier struct {
	db    *sql.DB
	users *users.Store
}

// CredentialsVerifier backs the bearer server: credentials are an email and
// a password, and refresh token ids are kept in the token table.
func CredentialsVerifier(db *sql.DB) oauth.CredentialsVerifier {
	return &credentialsVerifier{db, users.NewStore(db)}
}

func (cs *credentialsVerifier) ValidateUser(username string, password string, scope string, r *http.Request) error {
	_, err := cs.users.Authenticate(r.Context(), username, password)
	return err
}

func (cs *credentialsVerifier) StoreTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	_, err := cs.db.Exec(
		"INSERT INTO token (username, token_id, refresh_token_id, expiration) VALUES (?, ?, ?, ?)",
		credential,
		tokenID,
		refreshTokenID,
		time.Now().UTC().Add(RefreshTTL),
	)
	return err
}

// ValidateTokenID consumes a refresh token id: each one can be redeemed once.
func (cs *credentialsVerifier) ValidateTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	var id int64
	err := cs.db.
		QueryRow(`
			DELETE FROM token
			WHERE username = ?
				AND token_id = ?
				AND refresh_token_id = ?
				AND expiration > ?
			RETURNING id`,
			credential,
			tokenID,
			refreshTokenID,
			time.Now().UTC(),
		).
		Scan(&id)
	if err != nil {
		return errors.New("could not refresh")
	}
	return nil
}

// AddClaims puts the user's identity in the token, so handlers never need
// to look the user up again.
func (cs *credentialsVerifier) AddClaims(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	user, err := cs.users.FindByEmail(r.Context(), credential)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"id":    strconv.FormatInt(user.ID, 10),
		"name":  user.Name,
		"email": user.Email,
	}, nil
}

func (*credentialsVerifier) AddProperties(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	return map[string]string{}, nil
}

func (*credentialsVerifier) ValidateClient(clientID string, clientSecret string, scope string, r *http.Request) error {
	return errors.New("not supported")
}
