package connectiondao

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/tj/assert"
)

// withTable runs callback against a fresh table in DynamoDB Local. Set
// DYNAMODB_ENDPOINT (e.g. http://localhost:8000) to run these tests.
func withTable(t *testing.T, callback func(ctx context.Context, dao *DAO)) {
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("DYNAMODB_ENDPOINT not set")
	}

	var (
		s = session.Must(session.NewSession(aws.NewConfig().
			WithCredentials(credentials.NewStaticCredentials("blah", "blah", "")).
			WithEndpoint(endpoint).
			WithRegion("us-west-2")))
		api       = dynamodb.New(s)
		tableName = fmt.Sprintf("table-%v", time.Now().UnixNano())
		dao       = New(api, tableName)
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := dao.Table().CreateTableIfNotExists(ctx)
	assert.Nil(t, err)
	defer dao.Table().DeleteTableIfExists(ctx)

	callback(ctx, dao)
}

func ids(conns []Connection) []string {
	var out []string
	for _, c := range conns {
		out = append(out, c.ConnectionID)
	}
	return out
}

func TestDAO(t *testing.T) {
	withTable(t, func(ctx context.Context, dao *DAO) {
		now := time.Now().Unix()
		a := Connection{UserID: "u1", ConnectionID: "A", EstablishedAt: now}
		b := Connection{UserID: "u1", ConnectionID: "B", EstablishedAt: now}
		other := Connection{UserID: "u2", ConnectionID: "C", EstablishedAt: now}

		t.Run("put is idempotent", func(t *testing.T) {
			assert.Nil(t, dao.Put(ctx, a))
			assert.Nil(t, dao.Put(ctx, a))
			assert.Nil(t, dao.Put(ctx, b))
			assert.Nil(t, dao.Put(ctx, other))

			conns, err := dao.ListByUser(ctx, "u1")
			assert.Nil(t, err)
			assert.ElementsMatch(t, []string{"A", "B"}, ids(conns))
		})

		t.Run("find by connection", func(t *testing.T) {
			conn, err := dao.FindByConnection(ctx, "C")
			assert.Nil(t, err)
			assert.NotNil(t, conn)
			assert.Equal(t, "u2", conn.UserID)

			missing, err := dao.FindByConnection(ctx, "nope")
			assert.Nil(t, err)
			assert.Nil(t, missing)
		})

		t.Run("remove is idempotent", func(t *testing.T) {
			assert.Nil(t, dao.Remove(ctx, "u1", "A"))
			assert.Nil(t, dao.Remove(ctx, "u1", "A"))
			assert.Nil(t, dao.Remove(ctx, "u9", "missing"))

			conns, err := dao.ListByUser(ctx, "u1")
			assert.Nil(t, err)
			assert.Equal(t, []string{"B"}, ids(conns))
		})

		t.Run("last operation wins", func(t *testing.T) {
			assert.Nil(t, dao.Remove(ctx, "u1", "A"))
			assert.Nil(t, dao.Put(ctx, a))

			conns, err := dao.ListByUser(ctx, "u1")
			assert.Nil(t, err)
			assert.ElementsMatch(t, []string{"A", "B"}, ids(conns))

			assert.Nil(t, dao.Put(ctx, a))
			assert.Nil(t, dao.Remove(ctx, "u1", "A"))

			conns, err = dao.ListByUser(ctx, "u1")
			assert.Nil(t, err)
			assert.Equal(t, []string{"B"}, ids(conns))
		})

		t.Run("each visits every record", func(t *testing.T) {
			var seen []string
			err := dao.Each(ctx, func(c Connection) error {
				seen = append(seen, c.ConnectionID)
				return nil
			})
			assert.Nil(t, err)
			assert.ElementsMatch(t, []string{"B", "C"}, seen)
		})
	})
}
