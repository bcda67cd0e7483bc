/*
Package mongo provides a MongoDB-backed payroll.EmployeeStore.

DOCUMENT LAYOUT (collection "employees"):

  {
    _id, name, email,
    base_salary: Decimal128,
    leaves: [ {id, date, type, status, reason, created_at, updated_at} ],
    monthly_salary_details: [ {month, year, total_approved_leaves,
                               calculated_deduction, final_monthly_salary} ],
    revision, created_at, updated_at
  }

ATOMICITY:
  A single-document ReplaceOne is atomic in MongoDB. The filter includes
  {revision: expected}, so a stale writer matches nothing and gets
  payroll.ErrConcurrentModification instead of overwriting newer state.
*/
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/warp/payroll-engine/payroll"
)

const (
	EmployeeCollection = "employees"
	opTimeout          = 10 * time.Second
)

// Store implements payroll.EmployeeStore on a MongoDB collection.
type Store struct {
	client     *driver.Client
	collection *driver.Collection
}

// Connect dials uri, pings the primary and returns a store on db.employees.
func Connect(ctx context.Context, uri, db string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	client, err := driver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return New(client, client.Database(db).Collection(EmployeeCollection)), nil
}

// New wraps an existing collection. client may be nil if the caller owns it.
func New(client *driver.Client, collection *driver.Collection) *Store {
	return &Store{client: client, collection: collection}
}

// Close disconnects the client opened by Connect.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// =============================================================================
// EMPLOYEE STORE (payroll.EmployeeStore interface)
// =============================================================================

func (s *Store) Create(ctx context.Context, emp payroll.Employee) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if emp.Revision == 0 {
		emp.Revision = 1
	}
	doc, err := toDoc(emp)
	if err != nil {
		return err
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if driver.IsDuplicateKeyError(err) {
			return payroll.ErrDuplicateEmployee
		}
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*payroll.Employee, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc employeeDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, driver.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find employee: %w", err)
	}
	emp, err := fromDoc(doc)
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

func (s *Store) List(ctx context.Context) ([]payroll.Employee, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find employees: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []employeeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode employees: %w", err)
	}

	out := make([]payroll.Employee, 0, len(docs))
	for _, d := range docs {
		emp, err := fromDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, emp payroll.Employee, expectedRevision int64) error {
	if err := emp.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	emp.Revision = expectedRevision + 1
	doc, err := toDoc(emp)
	if err != nil {
		return err
	}

	res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": emp.ID, "revision": expectedRevision}, doc)
	if err != nil {
		return fmt.Errorf("replace employee: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.collection.CountDocuments(ctx, bson.M{"_id": emp.ID})
	if err != nil {
		return fmt.Errorf("count employee: %w", err)
	}
	if n == 0 {
		return &payroll.NotFoundError{Kind: "employee", ID: emp.ID}
	}
	return payroll.ErrConcurrentModification
}

func (s *Store) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := s.collection.DeleteMany(ctx, bson.M{})
	return err
}

var (
	_ payroll.EmployeeStore = (*Store)(nil)
	_ payroll.Resetter      = (*Store)(nil)
)

// =============================================================================
// DOCUMENT MAPPING
// =============================================================================

type employeeDoc struct {
	ID                   string               `bson:"_id"`
	Name                 string               `bson:"name"`
	Email                string               `bson:"email,omitempty"`
	BaseSalary           primitive.Decimal128 `bson:"base_salary"`
	Leaves               []leaveDoc           `bson:"leaves"`
	MonthlySalaryDetails []aggregateDoc       `bson:"monthly_salary_details"`
	Revision             int64                `bson:"revision"`
	CreatedAt            time.Time            `bson:"created_at"`
	UpdatedAt            time.Time            `bson:"updated_at"`
}

type leaveDoc struct {
	ID        string    `bson:"id"`
	Date      time.Time `bson:"date"`
	Type      string    `bson:"type"`
	Status    string    `bson:"status"`
	Reason    string    `bson:"reason,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type aggregateDoc struct {
	Month               int                  `bson:"month"`
	Year                int                  `bson:"year"`
	TotalApprovedLeaves int                  `bson:"total_approved_leaves"`
	CalculatedDeduction primitive.Decimal128 `bson:"calculated_deduction"`
	FinalMonthlySalary  primitive.Decimal128 `bson:"final_monthly_salary"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("decimal %s does not fit Decimal128: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(v.String())
}

func toDoc(emp payroll.Employee) (employeeDoc, error) {
	base, err := toDecimal128(emp.BaseSalary)
	if err != nil {
		return employeeDoc{}, err
	}
	doc := employeeDoc{
		ID:                   emp.ID,
		Name:                 emp.Name,
		Email:                emp.Email,
		BaseSalary:           base,
		Leaves:               make([]leaveDoc, 0, len(emp.Leaves)),
		MonthlySalaryDetails: make([]aggregateDoc, 0, len(emp.MonthlySalaryDetails)),
		Revision:             emp.Revision,
		CreatedAt:            emp.CreatedAt.UTC(),
		UpdatedAt:            emp.UpdatedAt.UTC(),
	}
	for _, l := range emp.Leaves {
		doc.Leaves = append(doc.Leaves, leaveDoc{
			ID:        l.ID,
			Date:      l.Date.UTC(),
			Type:      string(l.Type),
			Status:    string(l.Status),
			Reason:    l.Reason,
			CreatedAt: l.CreatedAt.UTC(),
			UpdatedAt: l.UpdatedAt.UTC(),
		})
	}
	for _, a := range emp.MonthlySalaryDetails {
		ded, err := toDecimal128(a.CalculatedDeduction)
		if err != nil {
			return employeeDoc{}, err
		}
		final, err := toDecimal128(a.FinalMonthlySalary)
		if err != nil {
			return employeeDoc{}, err
		}
		doc.MonthlySalaryDetails = append(doc.MonthlySalaryDetails, aggregateDoc{
			Month:               int(a.Month),
			Year:                a.Year,
			TotalApprovedLeaves: a.TotalApprovedLeaves,
			CalculatedDeduction: ded,
			FinalMonthlySalary:  final,
		})
	}
	return doc, nil
}

func fromDoc(doc employeeDoc) (payroll.Employee, error) {
	base, err := fromDecimal128(doc.BaseSalary)
	if err != nil {
		return payroll.Employee{}, fmt.Errorf("employee %s: base_salary: %w", doc.ID, err)
	}
	emp := payroll.Employee{
		ID:         doc.ID,
		Name:       doc.Name,
		Email:      doc.Email,
		BaseSalary: base,
		Leaves:     make([]payroll.LeaveRecord, 0, len(doc.Leaves)),
		Revision:   doc.Revision,
		CreatedAt:  doc.CreatedAt.UTC(),
		UpdatedAt:  doc.UpdatedAt.UTC(),
	}
	for _, l := range doc.Leaves {
		emp.Leaves = append(emp.Leaves, payroll.LeaveRecord{
			ID:        l.ID,
			Date:      l.Date.UTC(),
			Type:      payroll.LeaveType(l.Type),
			Status:    payroll.LeaveStatus(l.Status),
			Reason:    l.Reason,
			CreatedAt: l.CreatedAt.UTC(),
			UpdatedAt: l.UpdatedAt.UTC(),
		})
	}
	for _, a := range doc.MonthlySalaryDetails {
		ded, err := fromDecimal128(a.CalculatedDeduction)
		if err != nil {
			return payroll.Employee{}, fmt.Errorf("employee %s: calculated_deduction: %w", doc.ID, err)
		}
		final, err := fromDecimal128(a.FinalMonthlySalary)
		if err != nil {
			return payroll.Employee{}, fmt.Errorf("employee %s: final_monthly_salary: %w", doc.ID, err)
		}
		emp.MonthlySalaryDetails = append(emp.MonthlySalaryDetails, payroll.MonthlyAggregate{
			Month:               time.Month(a.Month),
			Year:                a.Year,
			TotalApprovedLeaves: a.TotalApprovedLeaves,
			CalculatedDeduction: ded,
			FinalMonthlySalary:  final,
		})
	}
	return emp, nil
}
