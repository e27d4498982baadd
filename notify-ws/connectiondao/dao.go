// Package connectiondao is the connection registry: a durable mapping from
// (user, connection) to connection metadata.
//
// Every write is an idempotent PutItem or DeleteItem on the full key, so
// concurrent writers converge without any locking.
package connectiondao

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// ConnectionIndex is the GSI keyed by connection id.
const ConnectionIndex = "ConnectionIndex"

// DAO provides access to the websocket connections table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new connections DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Connection{}),
		api:       api,
		tableName: tableName,
	}
}

// Table exposes the underlying table, for creating it against DynamoDB Local.
func (d *DAO) Table() *ddb.Table {
	return d.table
}

// Put stores a connection record. Putting an existing pair overwrites it.
func (d *DAO) Put(ctx context.Context, conn Connection) error {
	if conn.UserID == "" || conn.ConnectionID == "" {
		return fmt.Errorf("connection record requires a user id and a connection id")
	}
	conn.ConnectionRef = conn.ConnectionID
	if err := d.table.Put(conn).RunWithContext(ctx); err != nil {
		return wrap("put", conn.UserID, conn.ConnectionID, err)
	}
	return nil
}

// Remove deletes a connection record. Removing an absent pair is a no-op.
func (d *DAO) Remove(ctx context.Context, userID, connectionID string) error {
	if err := d.table.Delete(userID).Range(connectionID).RunWithContext(ctx); err != nil {
		return wrap("remove", userID, connectionID, err)
	}
	return nil
}

// ListByUser returns every connection registered for a user. The read is
// strongly consistent so it reflects all puts that completed before it.
func (d *DAO) ListByUser(ctx context.Context, userID string) ([]Connection, error) {
	var conns []Connection
	err := d.table.Query("#UserID = ?", userID).
		ConsistentRead(true).
		FindAllWithContext(ctx, &conns)
	if err != nil {
		return nil, wrap("list", userID, "", err)
	}
	return conns, nil
}

// FindByConnection looks a connection up by id alone, for disconnect
// notifications that carry no user identity. Returns nil if not found.
func (d *DAO) FindByConnection(ctx context.Context, connectionID string) (*Connection, error) {
	var conns []Connection
	err := d.table.Query("#ConnectionRef = ?", connectionID).
		IndexName(ConnectionIndex).
		FindAllWithContext(ctx, &conns)
	if err != nil {
		return nil, wrap("find", "", connectionID, err)
	}
	if len(conns) == 0 {
		return nil, nil
	}
	return &conns[0], nil
}

// Each scans the whole registry, calling fn for every record. Scanning stops
// at the first error returned by fn.
func (d *DAO) Each(ctx context.Context, fn func(Connection) error) error {
	var callbackErr error
	err := d.api.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.tableName),
	}, func(page *dynamodb.ScanOutput, _ bool) bool {
		var conns []Connection
		if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &conns); err != nil {
			callbackErr = fmt.Errorf("failed to unmarshal connections page: %w", err)
			return false
		}
		for _, conn := range conns {
			if err := fn(conn); err != nil {
				callbackErr = err
				return false
			}
		}
		return true
	})
	if err != nil {
		return wrap("scan", "", "", err)
	}
	return callbackErr
}
