// Package index builds, merges and persists the term-level inverted index
// over the documents collected by the fetch stage.
package index

import "sort"

// PostingList holds the documents containing one term.
type PostingList struct {
	DocumentFrequency int `json:"document_frequency" yaml:"document_frequency"`
	// Postings maps doc id to term frequency.
	Postings map[int]int `json:"postings" yaml:"postings"`
}

// InvertedIndex maps a term to its posting list.
type InvertedIndex map[string]*PostingList

// DocumentMap maps doc id to the source URL.
type DocumentMap map[int]string

// GetOrCreate returns the posting list for term, adding an empty one when
// the term is new.
func (idx InvertedIndex) GetOrCreate(term string) *PostingList {
	if pl, ok := idx[term]; ok {
		return pl
	}
	pl := &PostingList{Postings: map[int]int{}}
	idx[term] = pl
	return pl
}

// AddDocument records the tokens of one document. Document frequency grows
// once per (term, doc); the posting holds the term frequency.
func (idx InvertedIndex) AddDocument(docID int, tokens []string) {
	for term, tf := range TermFrequencies(tokens) {
		pl := idx.GetOrCreate(term)
		if _, seen := pl.Postings[docID]; !seen {
			pl.DocumentFrequency++
		}
		pl.Postings[docID] = tf
	}
}

// Terms returns the vocabulary in sorted order.
func (idx InvertedIndex) Terms() []string {
	out := make([]string, 0, len(idx))
	for term := range idx {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// TermFrequencies counts the occurrences of each token.
func TermFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

// Merge unions partial indexes. Document frequency is recomputed from the
// union of doc ids per term, never summed, so a document present in several
// parts is counted once. When parts disagree on a posting the later part wins.
func Merge(parts ...InvertedIndex) InvertedIndex {
	out := InvertedIndex{}
	for _, part := range parts {
		for term, pl := range part {
			dst := out.GetOrCreate(term)
			for docID, tf := range pl.Postings {
				dst.Postings[docID] = tf
			}
		}
	}
	for _, pl := range out {
		pl.DocumentFrequency = len(pl.Postings)
	}
	return out
}

// remap rewrites doc ids through ids, dropping postings with no mapping.
func (idx InvertedIndex) remap(ids map[int]int) InvertedIndex {
	out := make(InvertedIndex, len(idx))
	for term, pl := range idx {
		postings := make(map[int]int, len(pl.Postings))
		for old, tf := range pl.Postings {
			if id, ok := ids[old]; ok {
				postings[id] = tf
			}
		}
		if len(postings) == 0 {
			continue
		}
		out[term] = &PostingList{DocumentFrequency: len(postings), Postings: postings}
	}
	return out
}
