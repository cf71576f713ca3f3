package document

import "sort"

// MigrateLegacyFormats upgrades older dict-shaped block fields to the
// current list shape, in place:
//
//   - end-plate-sequencer plateMarkers: object -> list of its values
//     (block level and definition level)
//   - end-plate-sequencer attachments: object -> list of {id, name}
//   - calculator / plate-add-reagent / add-reagent values:
//     object -> list of {id, value}
//
// It reports whether anything was rewritten so the caller can persist
// the upgraded document; a second pass over migrated data is a no-op.
func MigrateLegacyFormats(doc Document) bool {
	if doc == nil {
		return false
	}
	changed := false
	for _, block := range rawBlocks(doc) {
		blockType, _ := block["type"].(string)
		switch blockType {
		case BlockEndPlateSequencer:
			if migrateMapToValues(block, "plateMarkers") {
				changed = true
			}
			if definition, ok := block["definition"].(map[string]any); ok {
				if migrateMapToValues(definition, "plateMarkers") {
					changed = true
				}
			}
			if migrateMapToPairs(block, "attachments", "id", "name") {
				changed = true
			}
		case BlockCalculator, BlockPlateAddReagent, BlockAddReagent:
			if migrateMapToPairs(block, "values", "id", "value") {
				changed = true
			}
		}
	}
	return changed
}

// rawBlocks walks sections[*].blocks[*] of a raw document, skipping
// anything that is not map-shaped.
func rawBlocks(doc Document) []map[string]any {
	sections, ok := doc["sections"].([]any)
	if !ok {
		return nil
	}
	var blocks []map[string]any
	for _, rawSection := range sections {
		section, ok := rawSection.(map[string]any)
		if !ok {
			continue
		}
		rawList, ok := section["blocks"].([]any)
		if !ok {
			continue
		}
		for _, rawBlock := range rawList {
			if block, ok := rawBlock.(map[string]any); ok {
				blocks = append(blocks, block)
			}
		}
	}
	return blocks
}

// migrateMapToValues rewrites container[field] from {key: value} to
// [value, ...] ordered by key.
func migrateMapToValues(container map[string]any, field string) bool {
	mapped, ok := container[field].(map[string]any)
	if !ok {
		return false
	}
	values := make([]any, 0, len(mapped))
	for _, key := range sortedKeys(mapped) {
		values = append(values, mapped[key])
	}
	container[field] = values
	return true
}

// migrateMapToPairs rewrites container[field] from {key: value} to
// [{keyName: key, valueName: value}, ...] ordered by key.
func migrateMapToPairs(container map[string]any, field, keyName, valueName string) bool {
	mapped, ok := container[field].(map[string]any)
	if !ok {
		return false
	}
	pairs := make([]any, 0, len(mapped))
	for _, key := range sortedKeys(mapped) {
		pairs = append(pairs, map[string]any{keyName: key, valueName: mapped[key]})
	}
	container[field] = pairs
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
