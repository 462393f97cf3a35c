package corpus

// Catalog maps document identifiers to records for one corpus snapshot. It is
// read-only after construction.
type Catalog struct {
	version uint64
	records map[string]Record
}

// NewCatalog indexes records by ID. version ties the catalog to the engine
// snapshot fitted from the same records. Later duplicates win, though the
// engine rejects duplicate IDs before a catalog is ever published.
func NewCatalog(version uint64, records []Record) *Catalog {
	m := make(map[string]Record, len(records))
	for _, r := range records {
		m[r.ID] = r
	}
	return &Catalog{version: version, records: m}
}

func (c *Catalog) Version() uint64 {
	return c.version
}

func (c *Catalog) Len() int {
	return len(c.records)
}

func (c *Catalog) Lookup(id string) (Record, bool) {
	r, ok := c.records[id]
	return r, ok
}
