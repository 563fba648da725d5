package model

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Tier identifies one of the three memory storage layers.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierHot, TierWarm, TierCold:
		return true
	}
	return false
}

// RecordStatus is the lifecycle state of a Warm-tier memory record.
type RecordStatus string

const (
	RecordActive   RecordStatus = "active"
	RecordArchived RecordStatus = "archived"
	RecordDeleted  RecordStatus = "deleted"
)

// Valid reports whether s is a known record status.
func (s RecordStatus) Valid() bool {
	switch s {
	case RecordActive, RecordArchived, RecordDeleted:
		return true
	}
	return false
}

// PartitionScheme controls how Cold-tier object keys are laid out.
type PartitionScheme string

const (
	PartitionMonthly PartitionScheme = "monthly" // {tenant}/{yyyy}/{mm}/{id}.json.gz
	PartitionDaily   PartitionScheme = "daily"   // {tenant}/{yyyy}/{mm}/{dd}/{id}.json.gz
)

// ColdKey builds the archive object key for a record archived at the given time.
func (p PartitionScheme) ColdKey(tenantID string, id uuid.UUID, at time.Time) string {
	at = at.UTC()
	if p == PartitionDaily {
		return fmt.Sprintf("%s/%04d/%02d/%02d/%s.json.gz", tenantID, at.Year(), int(at.Month()), at.Day(), id)
	}
	return fmt.Sprintf("%s/%04d/%02d/%s.json.gz", tenantID, at.Year(), int(at.Month()), id)
}

// TenantPrefix is the archive prefix under which all of a tenant's objects live.
func TenantPrefix(tenantID string) string {
	return tenantID + "/"
}

// TierConfig is the per-tenant tiering policy.
type TierConfig struct {
	TenantID            string          `json:"tenant_id" validate:"required,tenant_id"`
	HotRetentionHours   int             `json:"hot_retention_hours" validate:"gte=0"`
	WarmRetentionDays   int             `json:"warm_retention_days" validate:"gte=0"`
	HotEnabled          bool            `json:"hot_enabled"`
	WarmEnabled         bool            `json:"warm_enabled"`
	ColdEnabled         bool            `json:"cold_enabled"`
	ColdPartitionScheme PartitionScheme `json:"cold_partition_scheme" validate:"oneof=monthly daily"`
	EvergreenNodeTypes  []string        `json:"evergreen_node_types" validate:"dive,required"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// DefaultTierConfig returns the policy applied to tenants with no stored configuration.
func DefaultTierConfig(tenantID string) TierConfig {
	return TierConfig{
		TenantID:            tenantID,
		HotRetentionHours:   24,
		WarmRetentionDays:   30,
		HotEnabled:          true,
		WarmEnabled:         true,
		ColdEnabled:         true,
		ColdPartitionScheme: PartitionMonthly,
		EvergreenNodeTypes:  []string{},
	}
}

// IsEvergreenType reports whether records of nodeType are exempt from archival.
func (c TierConfig) IsEvergreenType(nodeType string) bool {
	return slices.Contains(c.EvergreenNodeTypes, nodeType)
}

// HotRetention returns the Hot-tier age threshold as a duration.
func (c TierConfig) HotRetention() time.Duration {
	return time.Duration(c.HotRetentionHours) * time.Hour
}

// WarmRetention returns the Warm-tier age threshold as a duration.
func (c TierConfig) WarmRetention() time.Duration {
	return time.Duration(c.WarmRetentionDays) * 24 * time.Hour
}

// MemoryRecord is a unit of knowledge tracked across the tiers.
type MemoryRecord struct {
	ID                uuid.UUID      `json:"id"`
	TenantID          string         `json:"tenant_id" validate:"required,tenant_id"`
	UserID            *string        `json:"user_id,omitempty"`
	NodeType          string         `json:"node_type" validate:"required,max=100"`
	Label             string         `json:"label" validate:"required,max=1000"`
	Content           string         `json:"content"`
	Properties        map[string]any `json:"properties,omitempty"`
	EmbeddingRef      *string        `json:"embedding_ref,omitempty"`
	Confidence        float64        `json:"confidence" validate:"gte=0,lte=1"`
	Status            RecordStatus   `json:"status"`
	IsEvergreen       bool           `json:"is_evergreen"`
	SourceTier        Tier           `json:"source_tier,omitempty"`
	SourceDocumentIDs []string       `json:"source_document_ids,omitempty"`
	ColdKey           *string        `json:"cold_key,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	ArchivedAt        *time.Time     `json:"archived_at,omitempty"`
	DeletedAt         *time.Time     `json:"deleted_at,omitempty"`
}

// OwnedBy reports whether the record belongs to userID, either through the
// user_id column or a userId property carried over from ingestion.
func (r MemoryRecord) OwnedBy(userID string) bool {
	if r.UserID != nil && *r.UserID == userID {
		return true
	}
	if v, ok := r.Properties["userId"].(string); ok && v == userID {
		return true
	}
	return false
}

// Owner returns the user a record belongs to: the user_id column, else the
// userId property. Nil when neither is set.
func (r MemoryRecord) Owner() *string {
	if r.UserID != nil {
		return r.UserID
	}
	if v, ok := r.Properties["userId"].(string); ok && v != "" {
		return &v
	}
	return nil
}

// MemoryEdge links two Warm-tier records.
type MemoryEdge struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenant_id"`
	SourceID  uuid.UUID `json:"source_id"`
	TargetID  uuid.UUID `json:"target_id"`
	Relation  string    `json:"relation"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}

// ColdSchemaVersion is the current version of the archived payload layout.
const ColdSchemaVersion = 1

// ColdRecord is the JSON document stored (gzip-compressed) in the Cold tier.
type ColdRecord struct {
	SchemaVersion int          `json:"schema_version"`
	Record        MemoryRecord `json:"record"`
	ArchivedAt    time.Time    `json:"archived_at"`
}

// MetricPeriod is the bucket width of a DataFlowMetric row.
type MetricPeriod string

const (
	PeriodHour MetricPeriod = "hour"
	PeriodDay  MetricPeriod = "day"
)

// BucketStart truncates t to the start of its bucket.
func (p MetricPeriod) BucketStart(t time.Time) time.Time {
	t = t.UTC()
	if p == PeriodDay {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t.Truncate(time.Hour)
}

// DataFlowMetric aggregates tier movement counters for one tenant and bucket.
type DataFlowMetric struct {
	TenantID                string       `json:"tenant_id"`
	Period                  MetricPeriod `json:"period"`
	PeriodStart             time.Time    `json:"period_start"`
	HotToWarmPromotions     int64        `json:"hot_to_warm_promotions"`
	WarmToColdArchivals     int64        `json:"warm_to_cold_archivals"`
	ColdToWarmRetrievals    int64        `json:"cold_to_warm_retrievals"`
	ColdRetrievalMisses     int64        `json:"cold_retrieval_misses"`
	ColdMissRate            float64      `json:"cold_miss_rate"`
	AvgRetrievalLatencyMs   float64      `json:"avg_retrieval_latency_ms"`
	TotalRetrievalLatencyMs int64        `json:"-"`
	UpdatedAt               time.Time    `json:"updated_at"`
}

// FlowDelta is an increment applied to a DataFlowMetric bucket.
type FlowDelta struct {
	Promotions       int64
	Archivals        int64
	Retrievals       int64
	RetrievalMisses  int64
	RetrievalLatency time.Duration
}

// IsZero reports whether the delta carries no movement.
func (d FlowDelta) IsZero() bool {
	return d.Promotions == 0 && d.Archivals == 0 && d.Retrievals == 0 && d.RetrievalMisses == 0
}

// AlertSeverity grades a TierAlert.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// TierAlert records a health threshold breach. Only the acknowledgement
// fields change after creation.
type TierAlert struct {
	ID             uuid.UUID     `json:"id"`
	TenantID       string        `json:"tenant_id"`
	Tier           Tier          `json:"tier"`
	Severity       AlertSeverity `json:"severity"`
	Metric         string        `json:"metric"`
	Threshold      float64       `json:"threshold"`
	CurrentValue   float64       `json:"current_value"`
	Message        string        `json:"message"`
	TriggeredAt    time.Time     `json:"triggered_at"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string       `json:"acknowledged_by,omitempty"`
}

// TierHealthSnapshot is written on every health check.
type TierHealthSnapshot struct {
	ID              uuid.UUID `json:"id"`
	TenantID        string    `json:"tenant_id"`
	CacheMemoryPct  float64   `json:"cache_memory_pct"`
	CacheHitRate    float64   `json:"cache_hit_rate"`
	HotKeyCount     int64     `json:"hot_key_count"`
	WarmNodeCount   int64     `json:"warm_node_count"`
	ArchivedCount   int64     `json:"archived_count"`
	AlertsTriggered int       `json:"alerts_triggered"`
	TakenAt         time.Time `json:"taken_at"`
}
