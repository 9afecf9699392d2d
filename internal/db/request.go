package db

import (
	"context"
	"time"

	"github.com/ukydev/plant-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRequestCollection stores maintenance requests.
type MongoRequestCollection struct {
	Collection *mongo.Collection
}

// Insert stores a new request, assigning an ID when missing.
func (c *MongoRequestCollection) Insert(ctx context.Context, r *models.MaintenanceRequest) error {
	if c.Collection == nil {
		return errNilCollection
	}
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	_, err := c.Collection.InsertOne(ctx, r)
	return err
}

// FindByID finds a request by its ID.
func (c *MongoRequestCollection) FindByID(ctx context.Context, id primitive.ObjectID) (*models.MaintenanceRequest, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var r models.MaintenanceRequest
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// Replace overwrites the stored request with r.
func (c *MongoRequestCollection) Replace(ctx context.Context, r *models.MaintenanceRequest) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": r.ID}, r)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a request by its ID.
func (c *MongoRequestCollection) Delete(ctx context.Context, id primitive.ObjectID) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func listFilter(f models.RequestFilter) bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["lifecycle_status"] = f.Status
	}
	if f.AssignedTo != nil {
		filter["assigned_to"] = *f.AssignedTo
	}
	return filter
}

// List returns one page of requests, newest first, and the total match count.
// Page and Limit must already be normalised.
func (c *MongoRequestCollection) List(ctx context.Context, f models.RequestFilter) ([]models.MaintenanceRequest, int64, error) {
	if c.Collection == nil {
		return nil, 0, errNilCollection
	}
	filter := listFilter(f)

	total, err := c.Collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(f.Page-1) * int64(f.Limit)).
		SetLimit(int64(f.Limit))
	cursor, err := c.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := []models.MaintenanceRequest{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (c *MongoRequestCollection) findOpen(ctx context.Context, field string, id primitive.ObjectID) ([]models.MaintenanceRequest, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	filter := bson.M{field: id, "lifecycle_status": bson.M{"$ne": models.StatusClosed}}
	cursor, err := c.Collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var open []models.MaintenanceRequest
	if err := cursor.All(ctx, &open); err != nil {
		return nil, err
	}
	return open, nil
}

// FindOpenByLine lists the requests against a line that are not closed.
func (c *MongoRequestCollection) FindOpenByLine(ctx context.Context, lineID primitive.ObjectID) ([]models.MaintenanceRequest, error) {
	return c.findOpen(ctx, "production_line_id", lineID)
}

// FindOpenByMachine lists the requests against a machine that are not closed.
func (c *MongoRequestCollection) FindOpenByMachine(ctx context.Context, machineID primitive.ObjectID) ([]models.MaintenanceRequest, error) {
	return c.findOpen(ctx, "machine_id", machineID)
}

// machineDowntime is the downtime one request contributes: the settled figure
// once closed, otherwise the carried minutes plus the interval still running
// at now.
func machineDowntime(now time.Time) bson.M {
	elapsed := bson.M{"$max": bson.A{0, bson.M{"$trunc": bson.M{"$divide": bson.A{
		bson.M{"$subtract": bson.A{bson.M{"$ifNull": bson.A{"$machine_down_end", now}}, "$machine_down_start"}},
		60 * 1000,
	}}}}}
	running := bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$machine_down_start", nil}}, nil}},
		0,
		elapsed,
	}}
	return bson.M{"$toLong": bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{"$lifecycle_status", models.StatusClosed}},
		bson.M{"$ifNull": bson.A{"$machine_downtime_minutes", 0}},
		bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$machine_downtime_carried_minutes", 0}}, running}},
	}}}
}

func summaryPipeline(now time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         MachinesCollection,
			"localField":   "machine_id",
			"foreignField": "_id",
			"as":           "machine",
		}}},
		{{Key: "$unwind", Value: "$machine"}},
		{{Key: "$group", Value: bson.M{
			"_id":                    "$machine._id",
			"machine_name":           bson.M{"$first": "$machine.name"},
			"total_downtime_minutes": bson.M{"$sum": machineDowntime(now)},
			"open_requests": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$ne": bson.A{"$lifecycle_status", models.StatusClosed}}, 1, 0},
			}},
			"total_cost": bson.M{"$sum": bson.M{"$reduce": bson.M{
				"input":        bson.M{"$ifNull": bson.A{"$spare_parts_used", bson.A{}}},
				"initialValue": 0,
				"in": bson.M{"$add": bson.A{
					"$$value",
					bson.M{"$multiply": bson.A{"$$this.unit_price", "$$this.quantity"}},
				}},
			}}},
			"avg_resolution_ms": bson.M{"$avg": bson.M{"$subtract": bson.A{"$closed_at", "$created_at"}}},
		}}},
		{{Key: "$project", Value: bson.M{
			"machine_name":           1,
			"total_downtime_minutes": 1,
			"open_requests":          1,
			"total_cost":             1,
			"avg_resolution_hours":   bson.M{"$divide": bson.A{"$avg_resolution_ms", 1000 * 60 * 60}},
		}}},
		{{Key: "$sort", Value: bson.M{"machine_name": 1}}},
	}
}

// Summary aggregates downtime as of now, open count and spare part cost per
// machine.
func (c *MongoRequestCollection) Summary(ctx context.Context, now time.Time) ([]models.MachineSummary, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	cursor, err := c.Collection.Aggregate(ctx, summaryPipeline(now))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	summary := []models.MachineSummary{}
	if err := cursor.All(ctx, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}
