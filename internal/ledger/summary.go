package ledger

import "go.uber.org/zap"

// Summary holds diagnostic counts over a ledger file.
type Summary struct {
	Rows              int `json:"rows"`
	Malformed         int `json:"malformed"`
	SuccessRows       int `json:"success_rows"`
	ErrorRows         int `json:"error_rows"`
	FatalRows         int `json:"fatal_rows"`
	UniqueSuccessURLs int `json:"unique_success_urls"`
}

// Summarize counts the rows of the ledger at path by outcome. A missing
// ledger yields a zero Summary.
func Summarize(path string, logger *zap.Logger) (Summary, error) {
	snap, err := Read(path, logger)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		Rows:              len(snap.Entries),
		Malformed:         snap.Malformed,
		UniqueSuccessURLs: len(snap.Completed),
	}
	for _, e := range snap.Entries {
		switch e.Status.Kind {
		case KindSuccess:
			sum.SuccessRows++
		case KindError:
			sum.ErrorRows++
		case KindFatal:
			sum.FatalRows++
		}
	}
	return sum, nil
}
