package document

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// DeepHash computes an order-insensitive structural hash of a JSON value.
// Maps hash by sorted key, and list elements are hashed individually and
// combined in sorted order, so two documents that differ only in array
// ordering hash identically. Numeric values are normalized through
// float64 so 1 and 1.0 compare equal regardless of decode path.
func DeepHash(value any) string {
	sum := sha256.Sum256([]byte(canonical(value)))
	return hex.EncodeToString(sum[:])
}

func canonical(value any) string {
	switch v := value.(type) {
	case nil:
		return "nil"
	case bool:
		return "bool:" + strconv.FormatBool(v)
	case string:
		return "str:" + strconv.Quote(v)
	case float64:
		return "num:" + strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return "num:" + strconv.FormatFloat(float64(v), 'g', -1, 64)
	case int:
		return "num:" + strconv.FormatFloat(float64(v), 'g', -1, 64)
	case int64:
		return "num:" + strconv.FormatFloat(float64(v), 'g', -1, 64)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return "num:" + v.String()
		}
		return "num:" + strconv.FormatFloat(f, 'g', -1, 64)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s := "map{"
		for _, k := range keys {
			s += strconv.Quote(k) + "=" + DeepHash(v[k]) + ";"
		}
		return s + "}"
	case []any:
		hashes := make([]string, 0, len(v))
		for _, item := range v {
			hashes = append(hashes, DeepHash(item))
		}
		sort.Strings(hashes)
		s := "list["
		for _, h := range hashes {
			s += h + ";"
		}
		return s + "]"
	default:
		return fmt.Sprintf("other:%T:%v", v, v)
	}
}
