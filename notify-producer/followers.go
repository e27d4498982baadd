package notifyproducer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultQueryTimeout = 3 * time.Second

const friendsQuery = `
SELECT friend.userid::text
FROM friend_nodes AS node
JOIN friend_edges AS edge ON edge.previous_node = node.id
JOIN friend_nodes AS friend ON friend.id = edge.next_node
WHERE node.userid::text = $1
  AND friend.userid IS NOT NULL
`

// PostgresFollowers reads the friend graph from the social database.
type PostgresFollowers struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresFollowers(ctx context.Context, dsn string) (*PostgresFollowers, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach social database: %w", err)
	}
	return &PostgresFollowers{pool: pool, timeout: defaultQueryTimeout}, nil
}

// Friends returns the users with an edge from userID. A user missing from
// the graph has no friends.
func (f *PostgresFollowers) Friends(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	rows, err := f.pool.Query(ctx, friendsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("querying friends of %v: %w", userID, err)
	}
	friends, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("reading friends of %v: %w", userID, err)
	}
	return friends, nil
}

func (f *PostgresFollowers) Close() {
	f.pool.Close()
}
