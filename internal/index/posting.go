package index

// Posting records how often a term occurs in one document. Ordinal is the
// document's position in document-id order and indexes InvertedIndex.Doc.
type Posting struct {
	DocID     string `json:"d"`
	Ordinal   uint32 `json:"o"`
	Frequency int    `json:"f"`
}

// PostingList is ordered by document id with no duplicate DocID.
type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}

// DocStat holds per-document statistics used by the ranking models.
type DocStat struct {
	ID     string  `json:"id"`
	Length int     `json:"len"`
	Norm   float64 `json:"norm"`
}
