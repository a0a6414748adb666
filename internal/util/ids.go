package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func newID(prefix string) string {
	id, err := gonanoid.Generate(idAlphabet, 16)
	if err != nil {
		// gonanoid only fails when the system entropy source is broken.
		panic(err)
	}
	return prefix + id
}

// NewNodeID returns a new public id for a graph node.
func NewNodeID() string {
	return newID("nd-")
}

// NewEdgeID returns a new public id for a graph edge.
func NewEdgeID() string {
	return newID("ed-")
}

// NewCommunityID returns a new public id for a community.
func NewCommunityID() string {
	return newID("cm-")
}

// NewEventID returns a new public id for a temporal event.
func NewEventID() string {
	return newID("ev-")
}
