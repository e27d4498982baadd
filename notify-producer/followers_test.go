package notifyproducer

import (
	"context"
	"os"
	"sort"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tj/assert"
)

const schema = `
CREATE TEMP TABLE friend_nodes (id BIGINT PRIMARY KEY, userid BIGINT);
CREATE TEMP TABLE friend_edges (previous_node BIGINT, next_node BIGINT);
INSERT INTO friend_nodes VALUES (1, 100), (2, 200), (3, 300), (4, NULL);
INSERT INTO friend_edges VALUES (1, 2), (1, 3), (1, 4), (2, 1);
`

func TestPostgresFollowers(t *testing.T) {
	dsn := os.Getenv("NOTIFY_DATABASE_URL")
	if dsn == "" {
		t.SkipNow()
	}

	ctx := context.Background()
	config, err := pgxpool.ParseConfig(dsn)
	assert.NoError(t, err)
	// temp tables are per session
	config.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	assert.NoError(t, err)
	f := &PostgresFollowers{pool: pool, timeout: defaultQueryTimeout}
	defer f.Close()

	_, err = pool.Exec(ctx, schema)
	assert.NoError(t, err)

	friends, err := f.Friends(ctx, "100")
	assert.NoError(t, err)
	sort.Strings(friends)
	assert.Equal(t, []string{"200", "300"}, friends)

	friends, err = f.Friends(ctx, "999")
	assert.NoError(t, err)
	assert.Len(t, friends, 0)
}
