package merge

import (
	"github.com/lifeos/tasks/internal/domain"
	"github.com/lifeos/tasks/internal/record"
	"github.com/lifeos/tasks/internal/store"
)

// Export builds a portable bundle document holding every record in
// each collection, ordered by id, plus an exported_at timestamp. The
// document round-trips through record.ParseBundle.
func Export(st *store.Store) (map[string]any, error) {
	doc := make(map[string]any, len(domain.Collections)+1)
	for _, collection := range domain.Collections {
		records, err := st.List(collection)
		if err != nil {
			return nil, err
		}
		if records == nil {
			records = []record.Record{}
		}
		doc[collection] = records
	}
	doc["exported_at"] = domain.NowTimestamp()
	return doc, nil
}
