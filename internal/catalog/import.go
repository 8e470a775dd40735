package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/store"
)

// Report summarizes an import.
type Report struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Import registers every record that the store does not already hold.
// Per-record failures are counted and do not stop the import; only a
// cancelled ctx does.
func Import(ctx context.Context, s store.Store, recs []doctree.DocumentRecord, log *slog.Logger) (Report, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	var rep Report
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		existing, err := s.GetDocumentMetadata(ctx, rec.DocID)
		if err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", rec.DocID, err))
			log.Error("catalog lookup failed", "doc_id", rec.DocID, "error", err)
			continue
		}
		if existing != nil {
			rep.Skipped++
			continue
		}
		if err := s.InsertDocument(ctx, rec); err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", rec.DocID, err))
			log.Error("catalog insert failed", "doc_id", rec.DocID, "error", err)
			continue
		}
		rep.Inserted++
	}
	log.Info("catalog imported", "inserted", rep.Inserted, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, nil
}
