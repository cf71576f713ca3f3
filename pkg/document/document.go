// Package document models the semi-structured protocol/run document tree:
// sections containing typed blocks. Stored payloads are opaque JSON maps;
// this package provides the typed view used by the projection engine, the
// change-policy gate, the legacy format migrator, and the search predicates.
package document

import (
	"encoding/json"
	"fmt"
)

// Document is a raw JSON payload as stored in a version row.
type Document = map[string]any

// Block type discriminators.
const (
	BlockTextQuestion        = "text-question"
	BlockOptionsQuestion     = "options-question"
	BlockCalculator          = "calculator"
	BlockPlateSampler        = "plate-sampler"
	BlockPlateAddReagent     = "plate-add-reagent"
	BlockAddReagent          = "add-reagent"
	BlockStartTimestamp      = "start-timestamp"
	BlockEndTimestamp        = "end-timestamp"
	BlockStartPlateSequencer = "start-plate-sequencer"
	BlockEndPlateSequencer   = "end-plate-sequencer"
)

// PlateCoordinate assigns a sample label to a well position.
// SampleLabel is a pointer so an absent key can be told apart from "".
type PlateCoordinate struct {
	Row         *int    `json:"row,omitempty"`
	Col         *int    `json:"col,omitempty"`
	PlateIndex  *int    `json:"plateIndex,omitempty"`
	SampleLabel *string `json:"sampleLabel,omitempty"`
}

// PlateMapping maps a physical plate label to its coordinate assignments.
type PlateMapping struct {
	Label       string            `json:"label"`
	Coordinates []PlateCoordinate `json:"coordinates,omitempty"`
}

// PlateResult records a sequencing result against a marker pair.
// Classification is a pointer: a result with the key absent contributes
// no result field to projected samples.
type PlateResult struct {
	PlateLabel     *string `json:"plateLabel,omitempty"`
	PlateIndex     *int    `json:"plateIndex,omitempty"`
	PlateRow       *int    `json:"plateRow,omitempty"`
	PlateCol       *int    `json:"plateCol,omitempty"`
	Marker1        *string `json:"marker1,omitempty"`
	Marker2        *string `json:"marker2,omitempty"`
	Classification *string `json:"classification,omitempty"`
}

// PlateMarkerEntry defines the marker pair expected at a plate coordinate.
type PlateMarkerEntry struct {
	Marker1     *string `json:"marker1,omitempty"`
	Marker2     *string `json:"marker2,omitempty"`
	PlateIndex  *int    `json:"plateIndex,omitempty"`
	PlateRow    *int    `json:"plateRow,omitempty"`
	PlateColumn *int    `json:"plateColumn,omitempty"`
}

// BlockDefinition is the protocol-authored half of a block. Only the
// fields the core reads are modeled; the rest round-trips as raw JSON.
type BlockDefinition struct {
	Type         string             `json:"type,omitempty"`
	ID           string             `json:"id,omitempty"`
	Name         string             `json:"name,omitempty"`
	ReagentLabel string             `json:"reagentLabel,omitempty"`
	PlateMarkers []PlateMarkerEntry `json:"plateMarkers,omitempty"`
}

// Block is one node of the document tree. It is a tagged union over the
// known block types: Type discriminates, and only the variant's fields
// are populated. Unknown types parse with just Type set and are skipped
// by every consumer.
type Block struct {
	Type       string           `json:"type"`
	Definition *BlockDefinition `json:"definition,omitempty"`

	// plate-sampler
	Plates []*PlateMapping `json:"plates,omitempty"`

	// plate-add-reagent
	PlateLabel string `json:"plateLabel,omitempty"`
	PlateLot   string `json:"plateLot,omitempty"`

	// add-reagent
	ReagentLot string `json:"reagentLot,omitempty"`

	// end-plate-sequencer
	PlateSequencingResults []PlateResult      `json:"plateSequencingResults,omitempty"`
	PlateMarkers           []PlateMarkerEntry `json:"plateMarkers,omitempty"`
}

// Section groups blocks and carries the signature workflow fields.
type Section struct {
	Blocks    []Block `json:"blocks,omitempty"`
	Signature string  `json:"signature,omitempty"`
	Witness   string  `json:"witness,omitempty"`
}

// Tree is the typed view of a run or protocol document.
type Tree struct {
	Sections []Section `json:"sections,omitempty"`
}

// Parse converts a raw payload into the typed tree. A nil document or a
// document without sections parses to an empty tree rather than failing.
func Parse(doc Document) (*Tree, error) {
	if doc == nil {
		return &Tree{}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var tree Tree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("parse document tree: %w", err)
	}
	return &tree, nil
}

// Markers returns every marker entry defined in the tree's
// end-plate-sequencer blocks, whether attached to the block itself
// (older schema) or to its definition.
func (t *Tree) Markers() []PlateMarkerEntry {
	var entries []PlateMarkerEntry
	for _, section := range t.Sections {
		for _, block := range section.Blocks {
			if block.Type != BlockEndPlateSequencer {
				continue
			}
			entries = append(entries, block.PlateMarkers...)
			if block.Definition != nil {
				entries = append(entries, block.Definition.PlateMarkers...)
			}
		}
	}
	return entries
}
