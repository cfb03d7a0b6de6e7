package app

import (
	"database/sql"

	"github.com/go-chi/oauth"
	"github.com/mbolis/quick-forms/config"
	"github.com/mbolis/quick-forms/httpx"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config
}

// New wires the bearer server to the credential store in db.
func New(db *sql.DB, cfg config.Config) App {
	return App{
		DB:           db,
		BearerServer: oauth.NewBearerServer(cfg.TokenSecret, cfg.TokenTTL, httpx.CredentialsVerifier(db), nil),
		Config:       cfg,
	}
}
