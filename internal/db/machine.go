package db

import (
	"context"
	"time"

	"github.com/ukydev/plant-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoMachineCollection stores machines.
type MongoMachineCollection struct {
	Collection *mongo.Collection
}

// Insert stores a new machine. A taken machine_code is ErrDuplicate.
func (c *MongoMachineCollection) Insert(ctx context.Context, m *models.Machine) error {
	if c.Collection == nil {
		return errNilCollection
	}
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	_, err := c.Collection.InsertOne(ctx, m)
	return duplicate(err)
}

// FindByID finds a machine by its ID.
func (c *MongoMachineCollection) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Machine, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var m models.Machine
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// Replace overwrites the stored machine.
func (c *MongoMachineCollection) Replace(ctx context.Context, m *models.Machine) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return duplicate(err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a machine.
func (c *MongoMachineCollection) Delete(ctx context.Context, id primitive.ObjectID) error {
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

// ClearLine detaches every machine from a production line that is going away.
func (c *MongoMachineCollection) ClearLine(ctx context.Context, lineID primitive.ObjectID) error {
	if c.Collection == nil {
		return errNilCollection
	}
	_, err := c.Collection.UpdateMany(ctx,
		bson.M{"production_line_id": lineID},
		bson.M{"$set": bson.M{"production_line_id": primitive.NilObjectID, "updated_at": time.Now().UTC()}},
	)
	return err
}

// SetStatus writes a derived machine status.
func (c *MongoMachineCollection) SetStatus(ctx context.Context, id primitive.ObjectID, status models.MachineStatus) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementMaintenanceCost adds amount to the accrued cost in a single atomic update.
func (c *MongoMachineCollection) IncrementMaintenanceCost(ctx context.Context, id primitive.ObjectID, amount float64) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"maintenance_cost": amount},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MongoLineCollection stores production lines.
type MongoLineCollection struct {
	Collection *mongo.Collection
}

// Insert stores a new production line. A taken line_code is ErrDuplicate.
func (c *MongoLineCollection) Insert(ctx context.Context, l *models.ProductionLine) error {
	if c.Collection == nil {
		return errNilCollection
	}
	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	if l.Machines == nil {
		l.Machines = []primitive.ObjectID{}
	}
	_, err := c.Collection.InsertOne(ctx, l)
	return duplicate(err)
}

// FindByID finds a production line by its ID.
func (c *MongoLineCollection) FindByID(ctx context.Context, id primitive.ObjectID) (*models.ProductionLine, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var l models.ProductionLine
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&l); err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// SetStatus writes a derived line status.
func (c *MongoLineCollection) SetStatus(ctx context.Context, id primitive.ObjectID, status models.LineStatus) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Replace overwrites the stored line's own fields. The machines list is left
// alone; it only changes through AddMachine and RemoveMachine.
func (c *MongoLineCollection) Replace(ctx context.Context, l *models.ProductionLine) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": l.ID},
		bson.M{"$set": bson.M{
			"line_code":   l.LineCode,
			"name":        l.Name,
			"description": l.Description,
			"updated_at":  l.UpdatedAt,
		}},
	)
	if err != nil {
		return duplicate(err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a production line.
func (c *MongoLineCollection) Delete(ctx context.Context, id primitive.ObjectID) error {
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

// AddMachine records machineID in the line's machines list once.
func (c *MongoLineCollection) AddMachine(ctx context.Context, lineID, machineID primitive.ObjectID) error {
	return c.updateMachines(ctx, lineID, bson.M{"$addToSet": bson.M{"machines": machineID}})
}

// RemoveMachine drops machineID from the line's machines list.
func (c *MongoLineCollection) RemoveMachine(ctx context.Context, lineID, machineID primitive.ObjectID) error {
	return c.updateMachines(ctx, lineID, bson.M{"$pull": bson.M{"machines": machineID}})
}

func (c *MongoLineCollection) updateMachines(ctx context.Context, lineID primitive.ObjectID, update bson.M) error {
	if c.Collection == nil {
		return errNilCollection
	}
	update["$set"] = bson.M{"updated_at": time.Now().UTC()}
	result, err := c.Collection.UpdateOne(ctx, bson.M{"_id": lineID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
