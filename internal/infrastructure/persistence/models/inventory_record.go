package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ObservationModel is the JSON shape of one observation inside the observations column
type ObservationModel struct {
	ID              uuid.UUID      `json:"id"`
	SourceReference string         `json:"source_reference"`
	Kind            string         `json:"extraction_kind"`
	Fields          map[string]any `json:"fields"`
	Confidence      float64        `json:"confidence"`
	HumanConfirmed  bool           `json:"human_confirmed"`
	Reviewer        string         `json:"reviewer,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// RecordBody holds the columns every record table shares besides identity and type details
type RecordBody struct {
	SourceName      string                                `gorm:"type:varchar(512);not null"`
	DisplayName     string                                `gorm:"type:varchar(512);not null"`
	Vendor          string                                `gorm:"type:varchar(255)"`
	ItemVersion     string                                `gorm:"column:item_version;type:varchar(128)"`
	Category        string                                `gorm:"type:varchar(128)"`
	CostAmount      decimal.NullDecimal                   `gorm:"type:decimal(18,2)"`
	CostCurrency    string                                `gorm:"type:varchar(3)"`
	CostStatus      string                                `gorm:"type:varchar(24);not null"`
	Observations    datatypes.JSONType[[]ObservationModel] `gorm:"not null"`
	LifecycleStatus string                                `gorm:"type:varchar(16);not null;index"`
	MergedInto      *string                               `gorm:"type:varchar(32)"`
	AggregateModel
}

// RecordRow is implemented by the per-type table models
type RecordRow interface {
	TableName() string
	ToDomain() *resolution.InventoryRecord
	// UpdateColumns returns the mutable columns with version set to the given value
	UpdateColumns(version int) map[string]any
}

// ApplicationModel is the persistence model for application records
type ApplicationModel struct {
	ID             string    `gorm:"type:varchar(32);primaryKey"`
	RecordType     string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_applications_identity,priority:1"`
	NormalizedName string    `gorm:"type:varchar(512);not null;uniqueIndex:uq_applications_identity,priority:2"`
	OwnershipScope string    `gorm:"type:varchar(16);not null;uniqueIndex:uq_applications_identity,priority:3;index:idx_applications_scope,priority:2"`
	DealID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_applications_identity,priority:4;index:idx_applications_scope,priority:1"`
	RecordBody
	HostingModel string `gorm:"type:varchar(64)"`
	UserCount    *int
	LicenseModel string `gorm:"type:varchar(64)"`
}

// TableName returns the table name for GORM
func (ApplicationModel) TableName() string {
	return "applications"
}

// InfrastructureItemModel is the persistence model for infrastructure records
type InfrastructureItemModel struct {
	ID             string    `gorm:"type:varchar(32);primaryKey"`
	RecordType     string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_infrastructure_items_identity,priority:1"`
	NormalizedName string    `gorm:"type:varchar(512);not null;uniqueIndex:uq_infrastructure_items_identity,priority:2"`
	OwnershipScope string    `gorm:"type:varchar(16);not null;uniqueIndex:uq_infrastructure_items_identity,priority:3;index:idx_infrastructure_items_scope,priority:2"`
	DealID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_infrastructure_items_identity,priority:4;index:idx_infrastructure_items_scope,priority:1"`
	RecordBody
	Environment string `gorm:"type:varchar(64)"`
	Location    string `gorm:"type:varchar(255)"`
	Quantity    *int
}

// TableName returns the table name for GORM
func (InfrastructureItemModel) TableName() string {
	return "infrastructure_items"
}

// OrganizationalRoleModel is the persistence model for organizational role records
type OrganizationalRoleModel struct {
	ID             string    `gorm:"type:varchar(32);primaryKey"`
	RecordType     string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_organizational_roles_identity,priority:1"`
	NormalizedName string    `gorm:"type:varchar(512);not null;uniqueIndex:uq_organizational_roles_identity,priority:2"`
	OwnershipScope string    `gorm:"type:varchar(16);not null;uniqueIndex:uq_organizational_roles_identity,priority:3;index:idx_organizational_roles_scope,priority:2"`
	DealID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_organizational_roles_identity,priority:4;index:idx_organizational_roles_scope,priority:1"`
	RecordBody
	Department string `gorm:"type:varchar(255)"`
	Headcount  *int
	ReportsTo  string `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (OrganizationalRoleModel) TableName() string {
	return "organizational_roles"
}

// TableFor returns the table that stores records of the given type
func TableFor(t resolution.RecordType) string {
	switch t {
	case resolution.RecordTypeInfrastructure:
		return InfrastructureItemModel{}.TableName()
	case resolution.RecordTypeOrganizationalRole:
		return OrganizationalRoleModel{}.TableName()
	default:
		return ApplicationModel{}.TableName()
	}
}

// NewRecordRow returns an empty row model for the given type, for use as a query destination
func NewRecordRow(t resolution.RecordType) RecordRow {
	switch t {
	case resolution.RecordTypeInfrastructure:
		return &InfrastructureItemModel{}
	case resolution.RecordTypeOrganizationalRole:
		return &OrganizationalRoleModel{}
	default:
		return &ApplicationModel{}
	}
}

// RecordRowFromDomain converts a domain record into the row model of its type
func RecordRowFromDomain(r *resolution.InventoryRecord) RecordRow {
	switch r.Type {
	case resolution.RecordTypeInfrastructure:
		m := &InfrastructureItemModel{
			ID:             r.ID,
			RecordType:     string(r.Type),
			NormalizedName: r.NormalizedName,
			OwnershipScope: string(r.OwnershipScope),
			DealID:         r.DealID,
			RecordBody:     bodyFromDomain(r),
		}
		if d := r.Infrastructure; d != nil {
			m.Environment, m.Location, m.Quantity = d.Environment, d.Location, d.Quantity
		}
		return m
	case resolution.RecordTypeOrganizationalRole:
		m := &OrganizationalRoleModel{
			ID:             r.ID,
			RecordType:     string(r.Type),
			NormalizedName: r.NormalizedName,
			OwnershipScope: string(r.OwnershipScope),
			DealID:         r.DealID,
			RecordBody:     bodyFromDomain(r),
		}
		if d := r.Role; d != nil {
			m.Department, m.Headcount, m.ReportsTo = d.Department, d.Headcount, d.ReportsTo
		}
		return m
	default:
		m := &ApplicationModel{
			ID:             r.ID,
			RecordType:     string(r.Type),
			NormalizedName: r.NormalizedName,
			OwnershipScope: string(r.OwnershipScope),
			DealID:         r.DealID,
			RecordBody:     bodyFromDomain(r),
		}
		if d := r.Application; d != nil {
			m.HostingModel, m.UserCount, m.LicenseModel = d.HostingModel, d.UserCount, d.LicenseModel
		}
		return m
	}
}

// ToDomain converts the persistence model to a domain InventoryRecord
func (m *ApplicationModel) ToDomain() *resolution.InventoryRecord {
	r := m.RecordBody.toDomain(m.ID, m.RecordType, m.NormalizedName, m.OwnershipScope, m.DealID)
	r.Application = &resolution.ApplicationDetails{
		HostingModel: m.HostingModel,
		UserCount:    m.UserCount,
		LicenseModel: m.LicenseModel,
	}
	return r
}

// UpdateColumns implements RecordRow
func (m *ApplicationModel) UpdateColumns(version int) map[string]any {
	cols := m.RecordBody.updateColumns(version)
	cols["hosting_model"] = m.HostingModel
	cols["user_count"] = m.UserCount
	cols["license_model"] = m.LicenseModel
	return cols
}

// ToDomain converts the persistence model to a domain InventoryRecord
func (m *InfrastructureItemModel) ToDomain() *resolution.InventoryRecord {
	r := m.RecordBody.toDomain(m.ID, m.RecordType, m.NormalizedName, m.OwnershipScope, m.DealID)
	r.Infrastructure = &resolution.InfrastructureDetails{
		Environment: m.Environment,
		Location:    m.Location,
		Quantity:    m.Quantity,
	}
	return r
}

// UpdateColumns implements RecordRow
func (m *InfrastructureItemModel) UpdateColumns(version int) map[string]any {
	cols := m.RecordBody.updateColumns(version)
	cols["environment"] = m.Environment
	cols["location"] = m.Location
	cols["quantity"] = m.Quantity
	return cols
}

// ToDomain converts the persistence model to a domain InventoryRecord
func (m *OrganizationalRoleModel) ToDomain() *resolution.InventoryRecord {
	r := m.RecordBody.toDomain(m.ID, m.RecordType, m.NormalizedName, m.OwnershipScope, m.DealID)
	r.Role = &resolution.RoleDetails{
		Department: m.Department,
		Headcount:  m.Headcount,
		ReportsTo:  m.ReportsTo,
	}
	return r
}

// UpdateColumns implements RecordRow
func (m *OrganizationalRoleModel) UpdateColumns(version int) map[string]any {
	cols := m.RecordBody.updateColumns(version)
	cols["department"] = m.Department
	cols["headcount"] = m.Headcount
	cols["reports_to"] = m.ReportsTo
	return cols
}

func bodyFromDomain(r *resolution.InventoryRecord) RecordBody {
	obs := make([]ObservationModel, len(r.Observations))
	for i, o := range r.Observations {
		obs[i] = ObservationModel{
			ID:              o.ID,
			SourceReference: o.SourceReference,
			Kind:            string(o.Kind),
			Fields:          o.Fields,
			Confidence:      o.Confidence,
			HumanConfirmed:  o.HumanConfirmed,
			Reviewer:        o.Reviewer,
			Timestamp:       o.Timestamp,
		}
	}

	b := RecordBody{
		SourceName:      r.SourceName,
		DisplayName:     r.Attributes.DisplayName,
		Vendor:          r.Attributes.Vendor,
		ItemVersion:     r.Attributes.Version,
		Category:        r.Attributes.Category,
		CostStatus:      string(r.Cost.Status),
		Observations:    datatypes.NewJSONType(obs),
		LifecycleStatus: string(r.Status),
	}
	if r.Cost.HasValue() {
		b.CostAmount = decimal.NewNullDecimal(r.Cost.Value.Amount())
		b.CostCurrency = string(r.Cost.Value.Currency())
	}
	if r.MergedInto != "" {
		merged := r.MergedInto
		b.MergedInto = &merged
	}
	b.FromDomainAggregateRoot(r.BaseAggregateRoot)
	return b
}

func (b *RecordBody) toDomain(id, recordType, normalized, scope string, dealID uuid.UUID) *resolution.InventoryRecord {
	stored := b.Observations.Data()
	obs := make([]resolution.Observation, len(stored))
	for i, o := range stored {
		obs[i] = resolution.Observation{
			ID:              o.ID,
			SourceReference: o.SourceReference,
			Kind:            resolution.ExtractionKind(o.Kind),
			Fields:          o.Fields,
			Confidence:      o.Confidence,
			HumanConfirmed:  o.HumanConfirmed,
			Reviewer:        o.Reviewer,
			Timestamp:       o.Timestamp.UTC(),
		}
	}

	r := &resolution.InventoryRecord{
		BaseAggregateRoot: b.ToDomainAggregateRoot(id),
		Type:              resolution.RecordType(recordType),
		OwnershipScope:    resolution.OwnershipScope(scope),
		DealID:            dealID,
		NormalizedName:    normalized,
		SourceName:        b.SourceName,
		Attributes: resolution.Attributes{
			DisplayName: b.DisplayName,
			Vendor:      b.Vendor,
			Version:     b.ItemVersion,
			Category:    b.Category,
		},
		Cost:         resolution.Cost{Status: resolution.CostStatus(b.CostStatus)},
		Observations: obs,
		Status:       resolution.LifecycleStatus(b.LifecycleStatus),
	}
	if b.CostAmount.Valid {
		if m, err := valueobject.NewMoney(b.CostAmount.Decimal, valueobject.ParseCurrency(b.CostCurrency)); err == nil {
			r.Cost.Value = &m
		}
	}
	if b.MergedInto != nil {
		r.MergedInto = *b.MergedInto
	}
	return r
}

func (b *RecordBody) updateColumns(version int) map[string]any {
	return map[string]any{
		"display_name":     b.DisplayName,
		"vendor":           b.Vendor,
		"item_version":     b.ItemVersion,
		"category":         b.Category,
		"cost_amount":      b.CostAmount,
		"cost_currency":    b.CostCurrency,
		"cost_status":      b.CostStatus,
		"observations":     b.Observations,
		"lifecycle_status": b.LifecycleStatus,
		"merged_into":      b.MergedInto,
		"version":          version,
		"updated_at":       b.UpdatedAt,
	}
}
