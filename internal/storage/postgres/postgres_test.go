package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/princekumarofficial/statements-service/internal/config"
	"github.com/princekumarofficial/statements-service/internal/logging"
	"github.com/princekumarofficial/statements-service/internal/types"
)

// Requires a reachable database; set PG_TEST_HOST to run.
func TestPostgres_MergeSessionRoundTrip(t *testing.T) {
	host := os.Getenv("PG_TEST_HOST")
	if host == "" {
		t.Skip("PG_TEST_HOST not set")
	}
	cfg := config.PQSQL{
		Host:     host,
		Port:     "5432",
		User:     "postgres",
		Password: os.Getenv("PG_TEST_PASSWORD"),
		DBName:   "statements_test",
		SSLMode:  "disable",
	}
	ctx := context.Background()

	pg, err := NewPostgres(ctx, cfg, logging.Discard())
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer pg.Close()

	id := "pg-test-" + time.Now().Format("150405.000000")
	if err := pg.SaveMergeSession(ctx, types.MergeSession{MergeSessionID: id, OwnerID: "u", Status: types.MergePending, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SaveMergeSession: %v", err)
	}
	defer pg.DeleteMergeSessions(ctx, id)

	list, err := pg.ListMergeSessions(ctx)
	if err != nil {
		t.Fatalf("ListMergeSessions: %v", err)
	}
	found := false
	for _, m := range list {
		if m.MergeSessionID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("merge session %s not listed", id)
	}
}
