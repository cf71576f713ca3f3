// Package projection derives flat sample records from the nested block
// tree of a run document. It is the denormalization pass behind the
// samples table: plate-sampler blocks contribute coordinate
// assignments, plate-sequencer blocks contribute markers and results,
// and section signatures contribute signers and witnesses.
package projection

import (
	"fmt"
	"sort"

	"github.com/labtrail/protocol-registry/pkg/document"
)

// Sample is one projected record, keyed by the composite
// (sample label, plate label, run version, protocol version).
type Sample struct {
	SampleID          string
	PlateID           string
	RunVersionID      int64
	ProtocolVersionID int64
	Data              document.Document
}

// Key formats the composite key, useful for map indexing and logs.
func (s Sample) Key() string {
	return fmt.Sprintf("%s|%s|%d|%d", s.SampleID, s.PlateID, s.RunVersionID, s.ProtocolVersionID)
}

// SamplesForRun scans a run document and produces the samples it
// defines. Marker definitions come from the owning protocol's document;
// when that yields none, the run's own document is scanned instead
// (older schema kept markers alongside results). Missing sections,
// plates, or labels are skipped, never errors: a malformed or empty
// document projects to an empty list.
func SamplesForRun(runDoc, protocolDoc document.Document, runVersionID, protocolVersionID int64) ([]Sample, error) {
	runTree, err := document.Parse(runDoc)
	if err != nil {
		return nil, fmt.Errorf("parse run document: %w", err)
	}
	protocolTree, err := document.Parse(protocolDoc)
	if err != nil {
		return nil, fmt.Errorf("parse protocol document: %w", err)
	}

	var signers, witnesses, lots []string
	results := map[string]document.PlateResult{}
	ordered := []string{}
	samples := map[string]*Sample{}

	for _, section := range runTree.Sections {
		if section.Signature != "" {
			signers = append(signers, section.Signature)
		}
		if section.Witness != "" {
			witnesses = append(witnesses, section.Witness)
		}
		for _, block := range section.Blocks {
			if block.PlateLot != "" {
				lots = append(lots, block.PlateLot)
			}
			switch block.Type {
			case document.BlockPlateSampler:
				for _, plate := range block.Plates {
					if plate == nil || plate.Label == "" {
						continue
					}
					for _, coordinate := range plate.Coordinates {
						if coordinate.SampleLabel == nil || *coordinate.SampleLabel == "" {
							continue
						}
						sample := &Sample{
							SampleID:          *coordinate.SampleLabel,
							PlateID:           plate.Label,
							RunVersionID:      runVersionID,
							ProtocolVersionID: protocolVersionID,
							Data:              document.Document{},
						}
						if coordinate.Row != nil {
							sample.Data["plateRow"] = *coordinate.Row
						}
						if coordinate.Col != nil {
							sample.Data["plateCol"] = *coordinate.Col
						}
						if coordinate.PlateIndex != nil {
							sample.Data["plateIndex"] = *coordinate.PlateIndex
						}
						if _, seen := samples[sample.Key()]; !seen {
							ordered = append(ordered, sample.Key())
						}
						samples[sample.Key()] = sample
					}
				}
			case document.BlockEndPlateSequencer:
				for _, result := range block.PlateSequencingResults {
					results[markerPairKey(result.Marker1, result.Marker2)] = result
				}
			}
		}
	}

	markers := indexMarkers(protocolTree.Markers())
	if len(markers) == 0 {
		markers = indexMarkers(runTree.Markers())
	}

	for _, key := range ordered {
		sample := samples[key]
		if len(signers) > 0 {
			sample.Data["signers"] = signers
		}
		if len(witnesses) > 0 {
			sample.Data["witnesses"] = witnesses
		}
		if len(lots) > 0 {
			sample.Data["plateLots"] = lots
		}
		attachMarkerAndResult(sample, markers, results)
	}

	out := make([]Sample, 0, len(ordered))
	for _, key := range ordered {
		out = append(out, *samples[key])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SampleID != out[j].SampleID {
			return out[i].SampleID < out[j].SampleID
		}
		return out[i].PlateID < out[j].PlateID
	})
	return out, nil
}

// attachMarkerAndResult joins a sample to its marker definition by
// plate coordinate, then to a sequencing result by marker pair. A
// sample with no matching marker or result simply omits those fields.
func attachMarkerAndResult(sample *Sample, markers map[string]document.PlateMarkerEntry, results map[string]document.PlateResult) {
	index, hasIndex := sample.Data["plateIndex"].(int)
	row, hasRow := sample.Data["plateRow"].(int)
	col, hasCol := sample.Data["plateCol"].(int)
	if !hasIndex || !hasRow || !hasCol {
		return
	}

	marker, found := markers[coordinateKey(index, row, col)]
	if !found {
		return
	}
	if marker.Marker1 != nil {
		sample.Data["marker1"] = *marker.Marker1
	}
	if marker.Marker2 != nil {
		sample.Data["marker2"] = *marker.Marker2
	}

	result, found := results[markerPairKey(marker.Marker1, marker.Marker2)]
	if !found {
		return
	}
	if result.Classification != nil {
		sample.Data["result"] = *result.Classification
	}
}

func indexMarkers(entries []document.PlateMarkerEntry) map[string]document.PlateMarkerEntry {
	markers := map[string]document.PlateMarkerEntry{}
	for _, entry := range entries {
		if entry.PlateIndex == nil || entry.PlateRow == nil || entry.PlateColumn == nil {
			continue
		}
		markers[coordinateKey(*entry.PlateIndex, *entry.PlateRow, *entry.PlateColumn)] = entry
	}
	return markers
}

func coordinateKey(index, row, col int) string {
	return fmt.Sprintf("%d-%d-%d", index, row, col)
}

func markerPairKey(marker1, marker2 *string) string {
	m1, m2 := "", ""
	if marker1 != nil {
		m1 = *marker1
	}
	if marker2 != nil {
		m2 = *marker2
	}
	return m1 + "-" + m2
}
