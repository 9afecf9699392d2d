package db

import (
	"context"
	"strings"
	"time"

	"github.com/ukydev/plant-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoEmployeeCollection stores employees.
type MongoEmployeeCollection struct {
	Collection *mongo.Collection
}

// Insert inserts a new employee into the database
func (c *MongoEmployeeCollection) Insert(ctx context.Context, e *models.Employee) error {
	if c.Collection == nil {
		return errNilCollection
	}
	now := time.Now().UTC()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	e.Email = strings.ToLower(strings.TrimSpace(e.Email))
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := c.Collection.InsertOne(ctx, e)
	return err
}

// FindByID finds an employee by their ID
func (c *MongoEmployeeCollection) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Employee, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var e models.Employee
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// FindByEmail finds an employee by their email
func (c *MongoEmployeeCollection) FindByEmail(ctx context.Context, email string) (*models.Employee, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var e models.Employee
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(email))}
	if err := c.Collection.FindOne(ctx, filter).Decode(&e); err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// MongoDepartmentCollection stores departments.
type MongoDepartmentCollection struct {
	Collection *mongo.Collection
}

// Insert inserts a new department
func (c *MongoDepartmentCollection) Insert(ctx context.Context, d *models.Department) error {
	if c.Collection == nil {
		return errNilCollection
	}
	now := time.Now().UTC()
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	if d.Employees == nil {
		d.Employees = []primitive.ObjectID{}
	}
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := c.Collection.InsertOne(ctx, d)
	return err
}

// FindByID finds a department by its ID
func (c *MongoDepartmentCollection) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Department, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var d models.Department
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// FindByName finds a department by its name
func (c *MongoDepartmentCollection) FindByName(ctx context.Context, name models.DepartmentName) (*models.Department, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var d models.Department
	if err := c.Collection.FindOne(ctx, bson.M{"name": name}).Decode(&d); err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// AddEmployee records employee membership on the department.
func (c *MongoDepartmentCollection) AddEmployee(ctx context.Context, departmentID, employeeID primitive.ObjectID) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": departmentID},
		bson.M{
			"$addToSet": bson.M{"employees": employeeID},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
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
