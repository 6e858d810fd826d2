package overlap

import "sort"

// Documents derives the set of documents from the index values by erasing the
// line of every location. The result is sorted and free of duplicates.
func Documents(index InvertedIndex) []Document {
	seen := make(map[Document]struct{})
	for _, locations := range index {
		for _, loc := range locations {
			seen[loc.Document()] = struct{}{}
		}
	}

	docs := make([]Document, 0, len(seen))
	for doc := range seen {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Less(docs[j])
	})

	return docs
}
