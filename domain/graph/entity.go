package graph

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// KnowledgeNode is a unit of stored knowledge. The relational row is the
// system of record; the graph store holds a derived mirror keyed by ID.
type KnowledgeNode struct {
	bun.BaseModel `bun:"table:knowledge_nodes,alias:kn"`

	ID          uuid.UUID   `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Title       string      `bun:"title,notnull" json:"title"`
	Content     string      `bun:"content,notnull" json:"content"`
	NodeType    NodeType    `bun:"node_type,notnull,default:'Knowledge'" json:"nodeType"`
	ContentType ContentType `bun:"content_type,notnull,default:'text'" json:"contentType"`
	OwnerID     string      `bun:"owner_id,notnull" json:"ownerId"`
	Tags        []string    `bun:"tags,array,notnull,default:'{}'" json:"tags"`
	Metadata    map[string]any `bun:"metadata,type:jsonb,notnull,default:'{}'" json:"metadata"`
	Version     int         `bun:"version,notnull,default:1" json:"version"`
	IsActive    bool        `bun:"is_active,notnull,default:true" json:"isActive"`
	CreatedAt   time.Time   `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull,default:now()" json:"updatedAt"`

	// Generated full-text search vector, never written by the application.
	SearchVector *string `bun:"search_vector,type:tsvector,scanonly" json:"-"`
}

// SemanticRelation is a typed, weighted, directed link between two nodes.
type SemanticRelation struct {
	bun.BaseModel `bun:"table:semantic_relations,alias:sr"`

	ID                uuid.UUID      `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	FromNodeID        uuid.UUID      `bun:"from_node_id,type:uuid,notnull" json:"fromNodeId"`
	ToNodeID          uuid.UUID      `bun:"to_node_id,type:uuid,notnull" json:"toNodeId"`
	RelationType      RelationType   `bun:"relation_type,notnull" json:"relationType"`
	Strength          float64        `bun:"strength,notnull,default:0.5" json:"strength"`
	Confidence        float64        `bun:"confidence,notnull,default:0.8" json:"confidence"`
	Metadata          map[string]any `bun:"metadata,type:jsonb,notnull,default:'{}'" json:"metadata"`
	OwnerID           string         `bun:"owner_id,notnull" json:"ownerId"`
	IsActive          bool           `bun:"is_active,notnull,default:true" json:"isActive"`
	IsSystemGenerated bool           `bun:"is_system_generated,notnull,default:false" json:"isSystemGenerated"`
	IsBidirectional   bool           `bun:"is_bidirectional,notnull,default:false" json:"isBidirectional"`
	Version           int            `bun:"version,notnull,default:1" json:"version"`
	CreatedAt         time.Time      `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt         time.Time      `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// OutboxOp identifies the mirror operation a graph_outbox row carries.
type OutboxOp string

const (
	OpUpsertNode OutboxOp = "upsert_node"
	OpDeleteNode OutboxOp = "delete_node"
	OpUpsertEdge OutboxOp = "upsert_edge"
	OpUpdateEdge OutboxOp = "update_edge"
	OpDeleteEdge OutboxOp = "delete_edge"
)

// OutboxEntry is a durable record of one pending graph-store mirror write.
// Entries are inserted in the same transaction as the relational mutation
// they mirror, and swept oldest-first so node upserts precede their edges.
type OutboxEntry struct {
	bun.BaseModel `bun:"table:graph_outbox,alias:ob"`

	ID        int64          `bun:"id,pk,autoincrement" json:"id"`
	Op        OutboxOp       `bun:"op,notnull" json:"op"`
	EntityID  uuid.UUID      `bun:"entity_id,type:uuid,notnull" json:"entityId"`
	Payload   map[string]any `bun:"payload,type:jsonb,notnull,default:'{}'" json:"payload"`
	Attempts  int            `bun:"attempts,notnull,default:0" json:"attempts"`
	LastError *string        `bun:"last_error" json:"lastError,omitempty"`
	AppliedAt *time.Time     `bun:"applied_at" json:"appliedAt,omitempty"`
	CreatedAt time.Time      `bun:"created_at,notnull,default:now()" json:"createdAt"`
}
