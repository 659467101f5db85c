package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pipeline-integrity/defect"
	"pipeline-integrity/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoDatabase   = "pipeline_integrity"
	mongoCollection = "defects"
	mongoTimeout    = 10 * time.Second
)

type MongoClient struct {
	client *mongo.Client
}

// mongoDefect is the stored document: the indexed keys plus the serialized
// ClassifiedDefect payload, mirroring the SQLite layout.
type mongoDefect struct {
	ID            string    `bson:"_id"`
	PipelineID    string    `bson:"pipelineId"`
	SegmentNumber int       `bson:"segmentNumber"`
	DefectType    string    `bson:"defectType"`
	Severity      string    `bson:"severity"`
	Probability   float64   `bson:"probability"`
	ClassifiedAt  time.Time `bson:"classifiedAt"`
	Payload       string    `bson:"payload"`
}

func NewMongoClient(uri string) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %s", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("error pinging MongoDB: %s", err)
	}

	return &MongoClient{client: client}, nil
}

func (m *MongoClient) collection() *mongo.Collection {
	return m.client.Database(utils.GetEnv("MONGO_DB", mongoDatabase)).Collection(mongoCollection)
}

func (m *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func toMongoDefect(d *defect.ClassifiedDefect) (mongoDefect, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return mongoDefect{}, fmt.Errorf("error marshaling defect: %s", err)
	}
	return mongoDefect{
		ID:            d.DefectID,
		PipelineID:    d.PipelineID,
		SegmentNumber: d.SegmentNumber,
		DefectType:    string(d.DefectType),
		Severity:      string(d.Severity),
		Probability:   d.Probability,
		ClassifiedAt:  d.ClassifiedAt,
		Payload:       string(payload),
	}, nil
}

// StoreDefect upserts a single classified defect.
func (m *MongoClient) StoreDefect(d *defect.ClassifiedDefect) error {
	doc, err := toMongoDefect(d)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	_, err = m.collection().ReplaceOne(ctx,
		bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("error storing defect: %s", err)
	}
	return nil
}

// StoreDefects upserts a batch with one bulk write.
func (m *MongoClient) StoreDefects(defects []defect.ClassifiedDefect) error {
	if len(defects) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(defects))
	for i := range defects {
		doc, err := toMongoDefect(&defects[i])
		if err != nil {
			return err
		}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	if _, err := m.collection().BulkWrite(ctx, writes); err != nil {
		return fmt.Errorf("error bulk storing defects: %s", err)
	}
	return nil
}

// GetDefect retrieves one defect by id.
func (m *MongoClient) GetDefect(defectID string) (defect.ClassifiedDefect, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	var doc mongoDefect
	err := m.collection().FindOne(ctx, bson.M{"_id": defectID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return defect.ClassifiedDefect{}, false, nil
		}
		return defect.ClassifiedDefect{}, false, fmt.Errorf("failed to retrieve defect: %s", err)
	}

	var d defect.ClassifiedDefect
	if err := json.Unmarshal([]byte(doc.Payload), &d); err != nil {
		return defect.ClassifiedDefect{}, false, fmt.Errorf("error unmarshaling defect: %s", err)
	}
	return d, true, nil
}

// GetAllDefects retrieves every stored defect ordered by id.
func (m *MongoClient) GetAllDefects() ([]defect.ClassifiedDefect, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	cursor, err := m.collection().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error querying defects: %s", err)
	}
	defer cursor.Close(ctx)

	var defects []defect.ClassifiedDefect
	for cursor.Next(ctx) {
		var doc mongoDefect
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding defect: %s", err)
		}
		var d defect.ClassifiedDefect
		if err := json.Unmarshal([]byte(doc.Payload), &d); err != nil {
			return nil, fmt.Errorf("error unmarshaling defect: %s", err)
		}
		defects = append(defects, d)
	}

	return defects, cursor.Err()
}

func (m *MongoClient) TotalDefects() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	count, err := m.collection().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("error counting defects: %s", err)
	}
	return int(count), nil
}

// DeleteDefect deletes a defect by id.
func (m *MongoClient) DeleteDefect(defectID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	if _, err := m.collection().DeleteOne(ctx, bson.M{"_id": defectID}); err != nil {
		return fmt.Errorf("failed to delete defect: %v", err)
	}
	return nil
}
