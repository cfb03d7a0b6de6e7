package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mbolis/quick-forms/database"
)

func TestPurgeExpiredTokens(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	now := time.Date(2024, 10, 26, 12, 0, 0, 0, time.UTC)
	for _, expiration := range []time.Time{now.Add(-time.Hour), now.Add(-time.Second), now.Add(time.Hour)} {
		_, err = db.Exec("INSERT INTO token (username, token_id, refresh_token_id, expiration) VALUES ('a@example.com', 't', 'r', ?)", expiration)
		if err != nil {
			t.Fatal(err)
		}
	}

	n, err := PurgeExpiredTokens(context.Background(), db, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("purged %d tokens", n)
	}

	var left int
	db.QueryRow("SELECT COUNT(*) FROM token").Scan(&left)
	if left != 1 {
		t.Errorf("%d tokens left", left)
	}
}

func TestStart(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	c, err := Start(db)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Stop()
	if len(c.Entries()) != 1 {
		t.Errorf("%d jobs scheduled", len(c.Entries()))
	}
}
