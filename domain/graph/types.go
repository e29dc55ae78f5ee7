package graph

// NodeType classifies what kind of knowledge a node holds.
type NodeType string

const (
	NodeTypeKnowledge NodeType = "Knowledge"
	NodeTypeConcept   NodeType = "Concept"
	NodeTypeFact      NodeType = "Fact"
	NodeTypeOpinion   NodeType = "Opinion"
	NodeTypeQuestion  NodeType = "Question"
	NodeTypeAnswer    NodeType = "Answer"
	NodeTypeDocument  NodeType = "Document"
	NodeTypePerson    NodeType = "Person"
	NodeTypeEvent     NodeType = "Event"
	NodeTypeLocation  NodeType = "Location"
)

// NodeTypes lists every valid node type.
var NodeTypes = []NodeType{
	NodeTypeKnowledge,
	NodeTypeConcept,
	NodeTypeFact,
	NodeTypeOpinion,
	NodeTypeQuestion,
	NodeTypeAnswer,
	NodeTypeDocument,
	NodeTypePerson,
	NodeTypeEvent,
	NodeTypeLocation,
}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	for _, v := range NodeTypes {
		if t == v {
			return true
		}
	}
	return false
}

// ContentType describes the media kind of a node's content.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeImage    ContentType = "image"
	ContentTypeVideo    ContentType = "video"
	ContentTypeAudio    ContentType = "audio"
	ContentTypeDocument ContentType = "document"
	ContentTypeURL      ContentType = "url"
	ContentTypeCode     ContentType = "code"
)

// ContentTypes lists every valid content type.
var ContentTypes = []ContentType{
	ContentTypeText,
	ContentTypeImage,
	ContentTypeVideo,
	ContentTypeAudio,
	ContentTypeDocument,
	ContentTypeURL,
	ContentTypeCode,
}

// Valid reports whether t is a known content type.
func (t ContentType) Valid() bool {
	for _, v := range ContentTypes {
		if t == v {
			return true
		}
	}
	return false
}

// RelationType is the closed set of semantic relation kinds. The value is
// also used as the edge type label in the graph store, so it must stay a
// valid Cypher relationship type (uppercase, underscores).
type RelationType string

const (
	RelationReferences    RelationType = "REFERENCES"
	RelationExpandsOn     RelationType = "EXPANDS_ON"
	RelationContradicts   RelationType = "CONTRADICTS"
	RelationSupports      RelationType = "SUPPORTS"
	RelationIsA           RelationType = "IS_A"
	RelationCauses        RelationType = "CAUSES"
	RelationPrecedes      RelationType = "PRECEDES"
	RelationIncludes      RelationType = "INCLUDES"
	RelationSimilarTo     RelationType = "SIMILAR_TO"
	RelationDifferentFrom RelationType = "DIFFERENT_FROM"
)

// RelationTypes lists every valid relation type.
var RelationTypes = []RelationType{
	RelationReferences,
	RelationExpandsOn,
	RelationContradicts,
	RelationSupports,
	RelationIsA,
	RelationCauses,
	RelationPrecedes,
	RelationIncludes,
	RelationSimilarTo,
	RelationDifferentFrom,
}

// Valid reports whether t is a known relation type.
func (t RelationType) Valid() bool {
	for _, v := range RelationTypes {
		if t == v {
			return true
		}
	}
	return false
}
