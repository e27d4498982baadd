package connectiondao

// Connection is one open websocket session for a user, as recorded in the
// registry. A record exists while its transport session is believed open.
type Connection struct {
	UserID        string `dynamodbav:"user_id" ddb:"hash"`
	ConnectionID  string `dynamodbav:"connection_id" ddb:"range"`
	ConnectionRef string `dynamodbav:"connection_ref" ddb:"gsi_hash:ConnectionIndex"` // copy of ConnectionID for the GSI
	Endpoint      string `dynamodbav:"endpoint"`
	EstablishedAt int64  `dynamodbav:"established_at"`
	TTL           int64  `dynamodbav:"ttl,omitempty"`
}
