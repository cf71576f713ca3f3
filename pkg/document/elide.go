package document

// ElideLargeFields removes the known large sub-trees from a document,
// in place: plate-sampler plates, end-plate-sequencer plateMarkers
// (block and definition level) and plateSequencingResults. List views
// use this to bound response size; callers elide a copy, never the
// stored payload.
func ElideLargeFields(doc Document) {
	for _, block := range rawBlocks(doc) {
		blockType, _ := block["type"].(string)
		switch blockType {
		case BlockPlateSampler:
			delete(block, "plates")
		case BlockEndPlateSequencer:
			delete(block, "plateMarkers")
			delete(block, "plateSequencingResults")
			if definition, ok := block["definition"].(map[string]any); ok {
				delete(definition, "plateMarkers")
			}
		}
	}
}
