package ai

import (
	"context"
	"fmt"
	"strings"
)

// ExtractedEntity is a single entity found in a document.
type ExtractedEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ExtractedRelationship is a connection between two extracted entities.
type ExtractedRelationship struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Description string  `json:"description"`
	Strength    float64 `json:"strength"`
}

// ExtractedEvent is a dated occurrence tied to an extracted entity. Date
// carries whatever precision the source text had ("2021", "2021-06", or a
// full "2021-06-15").
type ExtractedEvent struct {
	Entity      string `json:"entity"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

// ExtractResponse is the structured output of a document extraction pass.
type ExtractResponse struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
	Events        []ExtractedEvent        `json:"events"`
}

// ExtractGraph runs entity, relationship, and event extraction over a single
// document chunk. Entity names come back upper-cased per the prompt contract.
func ExtractGraph(
	ctx context.Context,
	client GraphAIClient,
	text string,
	documentName string,
	entityTypes []string,
	opts ...GenerateOption,
) (*ExtractResponse, error) {
	prompt := fmt.Sprintf(ExtractPrompt,
		strings.Join(entityTypes, ", "),
		documentName,
		text,
	)

	var out ExtractResponse
	err := client.GenerateCompletionWithFormat(
		ctx,
		"graph_extraction",
		"Entities, relationships, and events extracted from a document",
		prompt,
		&out,
		opts...,
	)
	if err != nil {
		return nil, err
	}

	for i := range out.Entities {
		out.Entities[i].Name = strings.ToUpper(strings.TrimSpace(out.Entities[i].Name))
	}
	for i := range out.Relationships {
		out.Relationships[i].Source = strings.ToUpper(strings.TrimSpace(out.Relationships[i].Source))
		out.Relationships[i].Target = strings.ToUpper(strings.TrimSpace(out.Relationships[i].Target))
	}
	for i := range out.Events {
		out.Events[i].Entity = strings.ToUpper(strings.TrimSpace(out.Events[i].Entity))
	}

	return &out, nil
}
