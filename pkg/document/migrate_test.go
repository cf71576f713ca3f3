package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequencerDoc(plateMarkers any) Document {
	return Document{
		"sections": []any{
			map[string]any{
				"blocks": []any{
					map[string]any{
						"type":         BlockEndPlateSequencer,
						"plateMarkers": plateMarkers,
					},
				},
			},
		},
	}
}

func firstBlock(doc Document) map[string]any {
	sections := doc["sections"].([]any)
	blocks := sections[0].(map[string]any)["blocks"].([]any)
	return blocks[0].(map[string]any)
}

func TestMigratePlateMarkersBlockLevel(t *testing.T) {
	doc := sequencerDoc(map[string]any{
		"0-1-2": map[string]any{"marker1": "M1"},
		"0-0-0": map[string]any{"marker1": "M0"},
	})

	assert.True(t, MigrateLegacyFormats(doc))

	markers, ok := firstBlock(doc)["plateMarkers"].([]any)
	require.True(t, ok, "plateMarkers should now be a list")
	require.Len(t, markers, 2)
	// Deterministic: values ordered by their former keys.
	assert.Equal(t, "M0", markers[0].(map[string]any)["marker1"])
	assert.Equal(t, "M1", markers[1].(map[string]any)["marker1"])
}

func TestMigratePlateMarkersDefinitionLevel(t *testing.T) {
	doc := sequencerDoc(nil)
	firstBlock(doc)["definition"] = map[string]any{
		"plateMarkers": map[string]any{
			"0-0-0": map[string]any{"marker1": "M0"},
		},
	}

	assert.True(t, MigrateLegacyFormats(doc))

	definition := firstBlock(doc)["definition"].(map[string]any)
	markers, ok := definition["plateMarkers"].([]any)
	require.True(t, ok)
	assert.Len(t, markers, 1)
}

func TestMigrateAttachments(t *testing.T) {
	doc := sequencerDoc(nil)
	firstBlock(doc)["attachments"] = map[string]any{
		"att-2": "results.csv",
		"att-1": "image.png",
	}

	assert.True(t, MigrateLegacyFormats(doc))

	attachments, ok := firstBlock(doc)["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 2)
	assert.Equal(t, map[string]any{"id": "att-1", "name": "image.png"}, attachments[0])
	assert.Equal(t, map[string]any{"id": "att-2", "name": "results.csv"}, attachments[1])
}

func TestMigrateCalculatorValues(t *testing.T) {
	doc := Document{
		"sections": []any{
			map[string]any{
				"blocks": []any{
					map[string]any{
						"type":   BlockCalculator,
						"values": map[string]any{"v1": 1.5, "v2": 2.5},
					},
					map[string]any{
						"type":   BlockAddReagent,
						"values": map[string]any{"r1": "10ul"},
					},
				},
			},
		},
	}

	assert.True(t, MigrateLegacyFormats(doc))

	sections := doc["sections"].([]any)
	blocks := sections[0].(map[string]any)["blocks"].([]any)

	values := blocks[0].(map[string]any)["values"].([]any)
	require.Len(t, values, 2)
	assert.Equal(t, map[string]any{"id": "v1", "value": 1.5}, values[0])

	reagentValues := blocks[1].(map[string]any)["values"].([]any)
	require.Len(t, reagentValues, 1)
	assert.Equal(t, map[string]any{"id": "r1", "value": "10ul"}, reagentValues[0])
}

func TestMigrateIdempotent(t *testing.T) {
	doc := sequencerDoc(map[string]any{
		"0-0-0": map[string]any{"marker1": "M0"},
	})

	assert.True(t, MigrateLegacyFormats(doc))
	assert.False(t, MigrateLegacyFormats(doc), "second pass should be a no-op")
}

func TestMigrateCurrentFormatUntouched(t *testing.T) {
	doc := sequencerDoc([]any{map[string]any{"marker1": "M0"}})
	assert.False(t, MigrateLegacyFormats(doc))
}

func TestMigrateMalformedShapesSkipped(t *testing.T) {
	assert.False(t, MigrateLegacyFormats(nil))
	assert.False(t, MigrateLegacyFormats(Document{"sections": "not a list"}))
	assert.False(t, MigrateLegacyFormats(Document{
		"sections": []any{map[string]any{"blocks": []any{"not a map"}}},
	}))
}
