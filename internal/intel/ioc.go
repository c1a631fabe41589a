package intel

// IOC category keys used by the feed adapters.
const (
	IOCIPAddresses    = "ip_addresses"
	IOCDomains        = "domains"
	IOCURLs           = "urls"
	IOCFileHashes     = "file_hashes"
	IOCEmailAddresses = "email_addresses"
	IOCCVE            = "cve"
)

// IOCMap maps an IOC category to its values. Values are normally a list of
// strings; feeds decoded from JSON may also carry a single scalar, which is
// preserved as-is.
type IOCMap map[string]any

// Count returns the total number of IOC values. A list contributes its
// length, any other value contributes 1.
func (m IOCMap) Count() int {
	total := 0
	for _, v := range m {
		switch vals := v.(type) {
		case []string:
			total += len(vals)
		case []any:
			total += len(vals)
		default:
			total++
		}
	}
	return total
}

// Values returns the string values stored under category.
func (m IOCMap) Values(category string) []string {
	switch vals := m[category].(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{vals}
	default:
		return nil
	}
}

// Add appends value under category, converting a scalar entry to a list.
func (m IOCMap) Add(category, value string) {
	existing := m.Values(category)
	m[category] = append(existing, value)
}

// Clone copies the map and any list values.
func (m IOCMap) Clone() IOCMap {
	if m == nil {
		return nil
	}
	out := make(IOCMap, len(m))
	for k, v := range m {
		switch vals := v.(type) {
		case []string:
			out[k] = cloneStrings(vals)
		case []any:
			out[k] = append([]any(nil), vals...)
		default:
			out[k] = v
		}
	}
	return out
}
