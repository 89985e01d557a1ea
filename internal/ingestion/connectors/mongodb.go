package connectors

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

/* MongoSource streams documents from a single collection via a stable
   server-side cursor, one document at a time. Connection dialing mirrors
   internal/store.Connect's URI-first idiom. */
type MongoSource struct {
	uri        string
	database   string
	collection string
	client     *mongo.Client
	cursor     *mongo.Cursor
}

/* NewMongoSource builds a mongodb source connector from a ConnectorRef
   config: {"uri": string, "database": string, "collection": string}. */
func NewMongoSource(cfg map[string]interface{}) (*MongoSource, error) {
	uri, _ := cfg["uri"].(string)
	database, _ := cfg["database"].(string)
	collection, _ := cfg["collection"].(string)
	if uri == "" || database == "" || collection == "" {
		return nil, fmt.Errorf("mongodb connector: config must set \"uri\", \"database\", and \"collection\"")
	}
	return &MongoSource{uri: uri, database: database, collection: collection}, nil
}

func (s *MongoSource) Open(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.uri))
	if err != nil {
		return fmt.Errorf("mongodb connector: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb connector: ping: %w", err)
	}
	s.client = client

	cursor, err := client.Database(s.database).Collection(s.collection).Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("mongodb connector: find: %w", err)
	}
	s.cursor = cursor
	return nil
}

func (s *MongoSource) Next(ctx context.Context) (map[string]interface{}, bool, error) {
	if !s.cursor.Next(ctx) {
		if err := s.cursor.Err(); err != nil {
			return nil, false, fmt.Errorf("mongodb connector: cursor: %w", err)
		}
		return nil, false, nil
	}

	var doc map[string]interface{}
	if err := s.cursor.Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("mongodb connector: decode: %w", err)
	}
	delete(doc, "_id")
	return doc, true, nil
}

func (s *MongoSource) Close(ctx context.Context) error {
	if s.cursor != nil {
		s.cursor.Close(ctx)
	}
	if s.client != nil {
		return s.client.Disconnect(ctx)
	}
	return nil
}

/* MongoDestination writes each transformed record as a new document in a
   single collection. */
type MongoDestination struct {
	uri        string
	database   string
	collection string
	client     *mongo.Client
}

/* NewMongoDestination builds a mongodb destination connector. */
func NewMongoDestination(cfg map[string]interface{}) (*MongoDestination, error) {
	uri, _ := cfg["uri"].(string)
	database, _ := cfg["database"].(string)
	collection, _ := cfg["collection"].(string)
	if uri == "" || database == "" || collection == "" {
		return nil, fmt.Errorf("mongodb connector: config must set \"uri\", \"database\", and \"collection\"")
	}
	return &MongoDestination{uri: uri, database: database, collection: collection}, nil
}

func (d *MongoDestination) Open(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(d.uri))
	if err != nil {
		return fmt.Errorf("mongodb connector: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb connector: ping: %w", err)
	}
	d.client = client
	return nil
}

func (d *MongoDestination) Write(ctx context.Context, record map[string]interface{}) error {
	_, err := d.client.Database(d.database).Collection(d.collection).InsertOne(ctx, record)
	return err
}

func (d *MongoDestination) Close(ctx context.Context) error {
	if d.client != nil {
		return d.client.Disconnect(ctx)
	}
	return nil
}
