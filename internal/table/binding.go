// Package table binds entity definitions to their attribute sources and
// exposes the four CRUD entry points.
package table

import (
	"errors"
	"fmt"

	"github.com/roach88/rulesql/internal/querysql"
	"github.com/roach88/rulesql/internal/rules"
)

var (
	// ErrMissingCreationSource is returned by Create and Update when the
	// binding has no creation source at all.
	ErrMissingCreationSource = errors.New("missing creation source")

	// ErrEmptyTableName is returned when an entity reports an empty table name.
	ErrEmptyTableName = errors.New("empty table name")

	// ErrNilEntity is returned by NewBinding when no entity is given.
	ErrNilEntity = errors.New("nil entity")
)

// Entity is the capability concrete entity definitions implement.
type Entity interface {
	TableName() string
}

// Operable renders statements for the four CRUD operations.
// A nil statement with a nil error means the operation is not supported.
type Operable interface {
	Create() (*querysql.Statement, error)
	Read() (*querysql.Statement, error)
	Update() (*querysql.Statement, error)
	Delete() (*querysql.Statement, error)
}

// Dispatch calls the Operable method matching op.
func Dispatch(o Operable, op rules.Operation) (*querysql.Statement, error) {
	switch op {
	case rules.Create:
		return o.Create()
	case rules.Read:
		return o.Read()
	case rules.Update:
		return o.Update()
	case rules.Delete:
		return o.Delete()
	default:
		return nil, fmt.Errorf("unknown operation %s", op)
	}
}

// Binding associates an entity's table with up to three attribute sources:
// creation data, filter data and projection data.
type Binding struct {
	table      string
	creation   *rules.Source
	filter     *rules.Source
	projection *rules.Source
	disabled   map[rules.Operation]bool
}

var _ Operable = (*Binding)(nil)

// Option configures a Binding.
type Option func(*Binding)

// WithCreation sets the creation source. Update reuses it as the new values.
func WithCreation(src *rules.Source) Option {
	return func(b *Binding) { b.creation = src }
}

// WithFilter sets the filter source used for WHERE clauses.
func WithFilter(src *rules.Source) Option {
	return func(b *Binding) { b.filter = src }
}

// WithProjection sets the projection source; the names of its validated
// attributes become the SELECT column list.
func WithProjection(src *rules.Source) Option {
	return func(b *Binding) { b.projection = src }
}

// WithoutOperations marks operations as unsupported. Their entry points
// return a nil statement.
func WithoutOperations(ops ...rules.Operation) Option {
	return func(b *Binding) {
		for _, op := range ops {
			b.disabled[op] = true
		}
	}
}

// NewBinding binds an entity to its sources.
func NewBinding(entity Entity, opts ...Option) (*Binding, error) {
	if entity == nil {
		return nil, ErrNilEntity
	}
	name := entity.TableName()
	if name == "" {
		return nil, ErrEmptyTableName
	}

	b := &Binding{table: name, disabled: make(map[rules.Operation]bool)}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Table returns the bound table name.
func (b *Binding) Table() string {
	return b.table
}

// Supports reports whether op is enabled on this binding.
func (b *Binding) Supports(op rules.Operation) bool {
	return !b.disabled[op]
}

// Create validates the creation source for Create and renders an INSERT.
func (b *Binding) Create() (*querysql.Statement, error) {
	if b.disabled[rules.Create] {
		return nil, nil
	}
	if b.creation == nil {
		return nil, fmt.Errorf("create %s: %w", b.table, ErrMissingCreationSource)
	}

	data, err := b.creation.Validate(rules.Create)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", b.table, err)
	}
	stmt, err := querysql.Create(b.table, data)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", b.table, err)
	}
	return &stmt, nil
}

// Read validates the filter and projection sources for Read, when present,
// and renders a SELECT.
func (b *Binding) Read() (*querysql.Statement, error) {
	if b.disabled[rules.Read] {
		return nil, nil
	}

	filter, err := validateOptional(b.filter, rules.Read)
	if err != nil {
		return nil, fmt.Errorf("read %s: filter: %w", b.table, err)
	}
	projection, err := validateOptional(b.projection, rules.Read)
	if err != nil {
		return nil, fmt.Errorf("read %s: projection: %w", b.table, err)
	}

	stmt, err := querysql.Read(b.table, filter, projection.Names())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.table, err)
	}
	return &stmt, nil
}

// Update validates the creation source (new values) and the filter source
// for Update and renders an UPDATE.
func (b *Binding) Update() (*querysql.Statement, error) {
	if b.disabled[rules.Update] {
		return nil, nil
	}
	if b.creation == nil {
		return nil, fmt.Errorf("update %s: %w", b.table, ErrMissingCreationSource)
	}

	values, err := b.creation.Validate(rules.Update)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", b.table, err)
	}
	filter, err := validateOptional(b.filter, rules.Update)
	if err != nil {
		return nil, fmt.Errorf("update %s: filter: %w", b.table, err)
	}

	stmt, err := querysql.Update(b.table, values, filter)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", b.table, err)
	}
	return &stmt, nil
}

// Delete validates the filter source for Delete, when present, and renders
// a DELETE.
func (b *Binding) Delete() (*querysql.Statement, error) {
	if b.disabled[rules.Delete] {
		return nil, nil
	}

	filter, err := validateOptional(b.filter, rules.Delete)
	if err != nil {
		return nil, fmt.Errorf("delete %s: filter: %w", b.table, err)
	}

	stmt, err := querysql.Delete(b.table, filter)
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", b.table, err)
	}
	return &stmt, nil
}

// validateOptional validates src for op; a nil source yields an empty set.
func validateOptional(src *rules.Source, op rules.Operation) (rules.DataSet, error) {
	if src == nil {
		return rules.DataSet{}, nil
	}
	return src.Validate(op)
}
