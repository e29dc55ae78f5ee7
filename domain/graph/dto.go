package graph

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/noeticlabs/noetic-server/pkg/apperror"
)

const (
	maxTitleLen = 500
	maxTags     = 20

	// DefaultMaxDepth bounds path searches when the caller does not tune it.
	DefaultMaxDepth = 6
	// MaxPathDepth is the hard ceiling on caller-supplied depth; the
	// variable-length graph match grows exponentially past this.
	MaxPathDepth = 15
	// MaxPathResults caps the candidate paths returned by FindPath.
	MaxPathResults = 5
	// TopConnectedCount is how many most-connected nodes stats report.
	TopConnectedCount = 5

	defaultStrength   = 0.5
	defaultConfidence = 0.8
)

// CreateNodeInput is the validated payload for creating a knowledge node.
// NodeType and ContentType default to Knowledge/text when empty.
type CreateNodeInput struct {
	OwnerID     string         `json:"ownerId"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	NodeType    NodeType       `json:"nodeType,omitempty"`
	ContentType ContentType    `json:"contentType,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Validate checks the input and fills defaults.
func (in *CreateNodeInput) Validate() error {
	details := map[string]any{}

	if in.OwnerID == "" {
		details["ownerId"] = "must not be empty"
	}
	if in.Title == "" {
		details["title"] = "must not be empty"
	} else if utf8.RuneCountInString(in.Title) > maxTitleLen {
		details["title"] = fmt.Sprintf("must be at most %d characters", maxTitleLen)
	}
	if in.Content == "" {
		details["content"] = "must not be empty"
	}

	if in.NodeType == "" {
		in.NodeType = NodeTypeKnowledge
	} else if !in.NodeType.Valid() {
		details["nodeType"] = fmt.Sprintf("unknown node type %q", in.NodeType)
	}

	if in.ContentType == "" {
		in.ContentType = ContentTypeText
	} else if !in.ContentType.Valid() {
		details["contentType"] = fmt.Sprintf("unknown content type %q", in.ContentType)
	}

	if len(in.Tags) > maxTags {
		details["tags"] = fmt.Sprintf("at most %d tags allowed", maxTags)
	}

	if len(details) > 0 {
		return apperror.NewValidation(details)
	}
	return nil
}

// UpdateNodeInput is a partial node update. Nil fields are left unchanged.
// Version must carry the version the caller last read; a stale value is
// rejected with a conflict instead of silently losing the concurrent write.
type UpdateNodeInput struct {
	Version     int             `json:"version"`
	Title       *string         `json:"title,omitempty"`
	Content     *string         `json:"content,omitempty"`
	NodeType    *NodeType       `json:"nodeType,omitempty"`
	ContentType *ContentType    `json:"contentType,omitempty"`
	Tags        *[]string       `json:"tags,omitempty"`
	Metadata    *map[string]any `json:"metadata,omitempty"`
}

// Validate checks the partial update.
func (in *UpdateNodeInput) Validate() error {
	details := map[string]any{}

	if in.Version < 1 {
		details["version"] = "expected version must be >= 1"
	}
	if in.Title != nil {
		if *in.Title == "" {
			details["title"] = "must not be empty"
		} else if utf8.RuneCountInString(*in.Title) > maxTitleLen {
			details["title"] = fmt.Sprintf("must be at most %d characters", maxTitleLen)
		}
	}
	if in.Content != nil && *in.Content == "" {
		details["content"] = "must not be empty"
	}
	if in.NodeType != nil && !in.NodeType.Valid() {
		details["nodeType"] = fmt.Sprintf("unknown node type %q", *in.NodeType)
	}
	if in.ContentType != nil && !in.ContentType.Valid() {
		details["contentType"] = fmt.Sprintf("unknown content type %q", *in.ContentType)
	}
	if in.Tags != nil && len(*in.Tags) > maxTags {
		details["tags"] = fmt.Sprintf("at most %d tags allowed", maxTags)
	}

	if len(details) > 0 {
		return apperror.NewValidation(details)
	}
	return nil
}

// CreateRelationInput is the validated payload for creating a relation.
type CreateRelationInput struct {
	OwnerID           string         `json:"ownerId"`
	FromNodeID        uuid.UUID      `json:"fromNodeId"`
	ToNodeID          uuid.UUID      `json:"toNodeId"`
	RelationType      RelationType   `json:"relationType"`
	Strength          *float64       `json:"strength,omitempty"`
	Confidence        *float64       `json:"confidence,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	IsSystemGenerated bool           `json:"isSystemGenerated,omitempty"`
	IsBidirectional   bool           `json:"isBidirectional,omitempty"`
}

// Validate checks the input and fills defaults (strength 0.5, confidence 0.8).
func (in *CreateRelationInput) Validate() error {
	details := map[string]any{}

	if in.OwnerID == "" {
		details["ownerId"] = "must not be empty"
	}
	if in.FromNodeID == uuid.Nil {
		details["fromNodeId"] = "must not be empty"
	}
	if in.ToNodeID == uuid.Nil {
		details["toNodeId"] = "must not be empty"
	}
	if !in.RelationType.Valid() {
		details["relationType"] = fmt.Sprintf("unknown relation type %q", in.RelationType)
	}

	if in.Strength == nil {
		v := defaultStrength
		in.Strength = &v
	} else if *in.Strength < 0 || *in.Strength > 1 {
		details["strength"] = "must be between 0 and 1"
	}
	if in.Confidence == nil {
		v := defaultConfidence
		in.Confidence = &v
	} else if *in.Confidence < 0 || *in.Confidence > 1 {
		details["confidence"] = "must be between 0 and 1"
	}

	if len(details) > 0 {
		return apperror.NewValidation(details)
	}
	return nil
}

// UpdateRelationInput is a partial relation update with the same expected
// version contract as UpdateNodeInput.
type UpdateRelationInput struct {
	Version         int             `json:"version"`
	Strength        *float64        `json:"strength,omitempty"`
	Confidence      *float64        `json:"confidence,omitempty"`
	Metadata        *map[string]any `json:"metadata,omitempty"`
	IsBidirectional *bool           `json:"isBidirectional,omitempty"`
}

// Validate checks the partial update.
func (in *UpdateRelationInput) Validate() error {
	details := map[string]any{}

	if in.Version < 1 {
		details["version"] = "expected version must be >= 1"
	}
	if in.Strength != nil && (*in.Strength < 0 || *in.Strength > 1) {
		details["strength"] = "must be between 0 and 1"
	}
	if in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1) {
		details["confidence"] = "must be between 0 and 1"
	}

	if len(details) > 0 {
		return apperror.NewValidation(details)
	}
	return nil
}

// SearchResult bundles an owner's nodes with the relations touching them.
type SearchResult struct {
	Nodes     []*KnowledgeNode    `json:"nodes"`
	Relations []*SemanticRelation `json:"relations"`
	Total     int                 `json:"total"`
}

// PathStep is one hop of a found path. Relation fields describe the edge
// traversed into this node and are empty on the first step.
type PathStep struct {
	NodeID       string  `json:"nodeId"`
	Title        string  `json:"title"`
	RelationID   string  `json:"relationId,omitempty"`
	RelationType string  `json:"relationType,omitempty"`
	Strength     float64 `json:"strength,omitempty"`
}

// PathResult is one candidate path between two nodes. TotalDistance sums
// (1 - strength) per edge; PathStrength multiplies edge strengths, so a
// path is only as strong as its weakest links combined.
type PathResult struct {
	Path          []PathStep `json:"path"`
	TotalDistance float64    `json:"totalDistance"`
	PathStrength  float64    `json:"pathStrength"`
}

// ConnectedNode is a stats entry for a highly connected node.
type ConnectedNode struct {
	NodeID string `json:"nodeId"`
	Title  string `json:"title"`
	Degree int    `json:"degree"`
}

// ConnectivityStats is the graph-store half of GraphStats.
type ConnectivityStats struct {
	AvgDegree    float64         `json:"avgDegree"`
	TopConnected []ConnectedNode `json:"topConnected"`
}

// GraphStats merges relational counts with graph-store connectivity.
type GraphStats struct {
	TotalNodes      int                  `json:"totalNodes"`
	TotalRelations  int                  `json:"totalRelations"`
	NodesByType     map[NodeType]int     `json:"nodesByType"`
	RelationsByType map[RelationType]int `json:"relationsByType"`
	AvgDegree       float64              `json:"avgDegree"`
	TopConnected    []ConnectedNode      `json:"topConnected"`
}
