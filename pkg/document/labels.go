package document

// Label existence predicates used by the search filter composer. Each
// walks the raw block tree the same way the stored JSON-path filters
// did, so a document matches here exactly when it matched in SQL.

// HasPlateLabel reports whether any block references the plate label in
// one of the three shapes it can appear in: a plateLabels map keyed by
// label, a mappings map keyed by label, or a scalar plateLabel field.
func HasPlateLabel(doc Document, label string) bool {
	for _, block := range rawBlocks(doc) {
		if labels, ok := block["plateLabels"].(map[string]any); ok {
			if _, found := labels[label]; found {
				return true
			}
		}
		if mappings, ok := block["mappings"].(map[string]any); ok {
			if _, found := mappings[label]; found {
				return true
			}
		}
		if scalar, ok := block["plateLabel"].(string); ok && scalar == label {
			return true
		}
	}
	return false
}

// HasReagentLabel reports whether any block's definition carries the
// reagent label.
func HasReagentLabel(doc Document, label string) bool {
	for _, block := range rawBlocks(doc) {
		definition, ok := block["definition"].(map[string]any)
		if !ok {
			continue
		}
		if reagent, ok := definition["reagentLabel"].(string); ok && reagent == label {
			return true
		}
	}
	return false
}

// HasSampleLabel reports whether any block assigns the sample label to
// a plate coordinate.
func HasSampleLabel(doc Document, label string) bool {
	for _, block := range rawBlocks(doc) {
		plates, ok := block["plates"].([]any)
		if !ok {
			continue
		}
		for _, rawPlate := range plates {
			plate, ok := rawPlate.(map[string]any)
			if !ok {
				continue
			}
			coordinates, ok := plate["coordinates"].([]any)
			if !ok {
				continue
			}
			for _, rawCoordinate := range coordinates {
				coordinate, ok := rawCoordinate.(map[string]any)
				if !ok {
					continue
				}
				if sample, ok := coordinate["sampleLabel"].(string); ok && sample == label {
					return true
				}
			}
		}
	}
	return false
}
