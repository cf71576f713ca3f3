package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labtrail/protocol-registry/pkg/document"
)

// runDocument builds a run with one signed section containing a
// plate-sampler (two samples on Plate1) and an end-plate-sequencer with
// one result for the CD3/CD19 pair.
func runDocument() document.Document {
	return document.Document{
		"sections": []any{
			map[string]any{
				"signature": "alice@lab.example",
				"witness":   "bob@lab.example",
				"blocks": []any{
					map[string]any{
						"type":     "plate-sampler",
						"plateLot": "LOT-42",
						"plates": []any{
							map[string]any{
								"label": "Plate1",
								"coordinates": []any{
									map[string]any{"sampleLabel": "S1", "row": 0.0, "col": 0.0, "plateIndex": 0.0},
									map[string]any{"sampleLabel": "S2", "row": 0.0, "col": 1.0, "plateIndex": 0.0},
								},
							},
						},
					},
					map[string]any{
						"type": "end-plate-sequencer",
						"plateSequencingResults": []any{
							map[string]any{"marker1": "CD3", "marker2": "CD19", "classification": "positive"},
						},
					},
				},
			},
		},
	}
}

func protocolDocument() document.Document {
	return document.Document{
		"sections": []any{
			map[string]any{
				"blocks": []any{
					map[string]any{
						"type": "end-plate-sequencer",
						"plateMarkers": []any{
							map[string]any{"marker1": "CD3", "marker2": "CD19", "plateIndex": 0.0, "plateRow": 0.0, "plateColumn": 0.0},
						},
					},
				},
			},
		},
	}
}

func TestSamplesForRun(t *testing.T) {
	samples, err := SamplesForRun(runDocument(), protocolDocument(), 10, 20)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	s1 := samples[0]
	assert.Equal(t, "S1", s1.SampleID)
	assert.Equal(t, "Plate1", s1.PlateID)
	assert.Equal(t, int64(10), s1.RunVersionID)
	assert.Equal(t, int64(20), s1.ProtocolVersionID)
	assert.Equal(t, []string{"alice@lab.example"}, s1.Data["signers"])
	assert.Equal(t, []string{"bob@lab.example"}, s1.Data["witnesses"])
	assert.Equal(t, []string{"LOT-42"}, s1.Data["plateLots"])

	// S1 sits at 0-0-0, where the protocol defines the CD3/CD19 pair.
	assert.Equal(t, "CD3", s1.Data["marker1"])
	assert.Equal(t, "CD19", s1.Data["marker2"])
	assert.Equal(t, "positive", s1.Data["result"])

	// S2 has no marker at its coordinate, so no result either.
	s2 := samples[1]
	assert.Equal(t, "S2", s2.SampleID)
	assert.NotContains(t, s2.Data, "marker1")
	assert.NotContains(t, s2.Data, "result")
}

func TestSamplesForRunMarkerFallbackToRunDocument(t *testing.T) {
	// Older runs carried markers in their own document; with an empty
	// protocol document the run-level markers must still join.
	runDoc := runDocument()
	sections := runDoc["sections"].([]any)
	blocks := sections[0].(map[string]any)["blocks"].([]any)
	sequencer := blocks[1].(map[string]any)
	sequencer["plateMarkers"] = []any{
		map[string]any{"marker1": "CD3", "marker2": "CD19", "plateIndex": 0.0, "plateRow": 0.0, "plateColumn": 0.0},
	}

	samples, err := SamplesForRun(runDoc, document.Document{}, 10, 20)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "positive", samples[0].Data["result"])
}

func TestSamplesForRunEmptyDocument(t *testing.T) {
	samples, err := SamplesForRun(document.Document{}, document.Document{}, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, samples)

	samples, err = SamplesForRun(nil, nil, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestSamplesForRunSkipsUnlabeled(t *testing.T) {
	doc := document.Document{
		"sections": []any{
			map[string]any{
				"blocks": []any{
					map[string]any{
						"type": "plate-sampler",
						"plates": []any{
							map[string]any{
								// No plate label: coordinates here are skipped.
								"coordinates": []any{
									map[string]any{"sampleLabel": "S1", "row": 0.0, "col": 0.0, "plateIndex": 0.0},
								},
							},
							map[string]any{
								"label": "Plate1",
								"coordinates": []any{
									map[string]any{"row": 1.0, "col": 1.0, "plateIndex": 0.0},
									map[string]any{"sampleLabel": "S9", "row": 2.0, "col": 0.0, "plateIndex": 0.0},
								},
							},
						},
					},
				},
			},
		},
	}

	samples, err := SamplesForRun(doc, nil, 1, 2)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "S9", samples[0].SampleID)
}

func TestSampleKeyFormat(t *testing.T) {
	sample := Sample{SampleID: "S1", PlateID: "Plate1", RunVersionID: 10, ProtocolVersionID: 20}
	assert.Equal(t, "S1|Plate1|10|20", sample.Key())
}
