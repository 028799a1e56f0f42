// Package mongodb provides the document Store backend on top of the
// official MongoDB driver. Filters translate to BSON; one collection per
// artifact kind, per tenant database.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

type Store struct {
	db     string
	client *mongo.Client
}

// NewStore connects to MongoDB and validates reachability. Remember to
// call Close to free the underlying connections.
func NewStore(ctx context.Context, uri, database string) (*Store, error) {
	opts := options.Client().ApplyURI(uri)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client options: %w", err)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{db: database, client: client}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) collection(name string) *mongo.Collection {
	return s.client.Database(s.db).Collection(name)
}

// collectionsFor resolves the collections searched for the given type
// info. Without a tag every partition of the base collection is searched.
func (s *Store) collectionsFor(ctx context.Context, info ports.TypeInfo) ([]string, error) {
	if info.Tag != "" {
		return []string{info.Collection()}, nil
	}
	base := info.Kind.Collection()
	names, err := s.client.Database(s.db).ListCollectionNames(ctx, bson.M{
		"name": bson.M{"$regex": "^" + base + "(_.*)?$"},
	})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	if len(names) == 0 {
		names = []string{base}
	}
	return names, nil
}

func (s *Store) Store(ctx context.Context, value domain.Element, info ports.TypeInfo) (string, error) {
	value.Header().EnsureID()
	id := value.Header().ElementID

	upsert := true
	_, err := s.collection(info.Collection()).ReplaceOne(ctx,
		bson.M{"element_id": id}, value,
		&options.ReplaceOptions{Upsert: &upsert})
	if err != nil {
		return "", fmt.Errorf("store %s: %w", id, err)
	}
	return id, nil
}

func (s *Store) Retrieve(ctx context.Context, idField, idValue string, info ports.TypeInfo, out domain.Element) (bool, error) {
	names, err := s.collectionsFor(ctx, info)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		sr := s.collection(name).FindOne(ctx, bson.M{idField: idValue})
		if err := sr.Err(); err != nil {
			if err == mongo.ErrNoDocuments {
				continue
			}
			return false, fmt.Errorf("retrieve: %w", err)
		}
		if err := sr.Decode(out); err != nil {
			return false, fmt.Errorf("decode: %w", err)
		}
		return true, nil
	}
	return false, nil
}

func (s *Store) Search(ctx context.Context, query domain.Query, info ports.TypeInfo, out any) error {
	filter, err := toBSON(query)
	if err != nil {
		return err
	}
	names, err := s.collectionsFor(ctx, info)
	if err != nil {
		return err
	}

	// Decode directly into the target slice, appending across partitions.
	for _, name := range names {
		cur, err := s.collection(name).Find(ctx, filter)
		if err != nil {
			return fmt.Errorf("search %s: %w", name, err)
		}
		var batch []bson.Raw
		if err := cur.All(ctx, &batch); err != nil {
			return fmt.Errorf("drain cursor: %w", err)
		}
		if err := appendDecoded(batch, out); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Update(ctx context.Context, idField, idValue string, value domain.Element, info ports.TypeInfo) (bool, error) {
	names, err := s.collectionsFor(ctx, info)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		res, err := s.collection(name).ReplaceOne(ctx, bson.M{idField: idValue}, value)
		if err != nil {
			return false, fmt.Errorf("update: %w", err)
		}
		if res.MatchedCount > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Delete(ctx context.Context, idField, idValue string, info ports.TypeInfo) (bool, error) {
	names, err := s.collectionsFor(ctx, info)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		res, err := s.collection(name).DeleteOne(ctx, bson.M{idField: idValue})
		if err != nil {
			return false, fmt.Errorf("delete: %w", err)
		}
		if res.DeletedCount > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) BulkStore(ctx context.Context, values []domain.Element, info ports.TypeInfo, ignoreDuplicates bool) ([]string, error) {
	coll := s.collection(info.Collection())
	ids := make([]string, 0, len(values))

	// One insert per item gives per-item isolation: one failed document
	// does not abort the rest of the batch.
	for _, value := range values {
		value.Header().EnsureID()
		id := value.Header().ElementID
		if ignoreDuplicates {
			n, err := coll.CountDocuments(ctx, bson.M{"element_id": id})
			if err != nil {
				return ids, fmt.Errorf("duplicate check: %w", err)
			}
			if n > 0 {
				continue
			}
		}
		if _, err := coll.InsertOne(ctx, value); err != nil {
			if ignoreDuplicates && mongo.IsDuplicateKeyError(err) {
				continue
			}
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// toBSON translates the uniform query language into a MongoDB filter.
func toBSON(query domain.Query) (bson.M, error) {
	filter := bson.M{}
	for field, f := range query {
		switch f.Operator {
		case domain.OpEqual:
			filter[field] = f.Value
		case domain.OpNotEqual:
			filter[field] = bson.M{"$ne": f.Value}
		case domain.OpGreaterEqual:
			filter[field] = bson.M{"$gte": f.Value}
		case domain.OpLessEqual:
			filter[field] = bson.M{"$lte": f.Value}
		case domain.OpEqualsMany:
			filter[field] = bson.M{"$in": f.Value}
		case domain.OpArrayContains:
			// Mongo equality on array fields already matches membership.
			filter[field] = f.Value
		default:
			return nil, fmt.Errorf("unsupported query operator %q", f.Operator)
		}
	}
	return filter, nil
}

func appendDecoded(batch []bson.Raw, out any) error {
	return decodeRawSlice(batch, out)
}
