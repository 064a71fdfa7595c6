package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-menu-tracker/internal/domain"
	"github.com/tbourn/go-menu-tracker/internal/events"
	"github.com/tbourn/go-menu-tracker/internal/lock"
	"github.com/tbourn/go-menu-tracker/internal/normalize"
	"github.com/tbourn/go-menu-tracker/internal/observability"
	"github.com/tbourn/go-menu-tracker/internal/platform"
	"github.com/tbourn/go-menu-tracker/internal/repo"
	"github.com/tbourn/go-menu-tracker/internal/snapshot"
)

// Phase is a step of a single import.
type Phase string

const (
	PhaseStarted          Phase = "started"
	PhaseValidated        Phase = "validated"
	PhaseResolved         Phase = "resolved"
	PhaseCategorized      Phase = "categorized"
	PhaseProductsResolved Phase = "products_resolved"
	PhaseOffersReconciled Phase = "offers_reconciled"
	PhaseProductsPriced   Phase = "products_priced"
	PhaseSnapshotRecorded Phase = "snapshot_recorded"
	PhaseCommitted        Phase = "committed"
)

const (
	defaultScraperVersion = "1.0.0"
	defaultScrapingMethod = "unknown"
)

// ImportResult summarizes a committed import.
type ImportResult struct {
	SessionID    string                     `json:"session_id"`
	Status       string                     `json:"status"`
	RestaurantID string                     `json:"restaurant_id"`
	DomainID     string                     `json:"domain_id"`
	ScrapedAt    time.Time                  `json:"scraped_at"`
	Categories   int                        `json:"categories"`
	Products     int                        `json:"products"`
	NewPrices    int                        `json:"new_prices"`
	Outcomes     map[Outcome]int            `json:"outcomes"`
	Offers       OfferResult                `json:"offers"`
	Warnings     []ProductExtractionWarning `json:"warnings,omitempty"`
	Duration     time.Duration              `json:"-"`
}

// BatchItem is the outcome of one snapshot of a batch. Exactly one of Result
// and Err is set.
type BatchItem struct {
	Index  int
	Source string
	Result *ImportResult
	Err    error
}

// Importer imports snapshots, one database transaction per snapshot.
type Importer struct {
	DB     *gorm.DB
	Log    zerolog.Logger
	Events events.Publisher
	Locker lock.Locker

	Catalog    *CatalogResolver
	Categories *CategoryResolver
	Products   *ProductResolver
	Prices     *PriceRecorder
	Offers     OfferReconciler

	// Workers bounds ImportMany concurrency; Limiter, when set, paces the
	// start of each import.
	Workers int
	Limiter *rate.Limiter

	Now func() time.Time
}

// ImporterOptions configures NewImporter.
type ImporterOptions struct {
	Registry        *platform.Registry
	DefaultCurrency string
	Workers         int
	RPS             float64
	Locker          lock.Locker
	Events          events.Publisher
	Log             zerolog.Logger
}

// NewImporter wires an Importer with the database-backed resolvers.
func NewImporter(db *gorm.DB, opts ImporterOptions) (*Importer, error) {
	reg := opts.Registry
	if reg == nil {
		var err error
		if reg, err = platform.Builtin(); err != nil {
			return nil, err
		}
	}
	currency := opts.DefaultCurrency
	if currency == "" {
		currency = "EUR"
	}
	im := &Importer{
		DB:         db,
		Log:        opts.Log,
		Events:     opts.Events,
		Locker:     opts.Locker,
		Catalog:    &CatalogResolver{Registry: reg, Log: opts.Log},
		Categories: &CategoryResolver{Log: opts.Log},
		Products:   &ProductResolver{Log: opts.Log},
		Prices:     &PriceRecorder{DefaultCurrency: currency},
		Offers:     &OfferManager{Log: opts.Log},
		Workers:    opts.Workers,
		Now:        time.Now,
	}
	if opts.RPS > 0 {
		im.Limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	if im.Events == nil {
		im.Events = events.Nop{}
	}
	if im.Locker == nil {
		im.Locker = lock.NewLocal()
	}
	return im, nil
}

// importState carries what the transaction produced, including how far it
// got when it failed.
type importState struct {
	phase      Phase
	domain     *domain.Domain
	restaurant *domain.Restaurant
	categories map[string]string
	outcomes   map[Outcome]int
	products   int
	newPrices  int
	offers     OfferResult
	warnings   []ProductExtractionWarning
}

type resolvedProduct struct {
	product snapshot.Product
	id      string
}

// Import parses and imports one raw JSON snapshot.
func (s *Importer) Import(ctx context.Context, raw []byte) (*ImportResult, error) {
	snap, err := snapshot.Parse(raw)
	if err != nil {
		observability.RecordImport(observability.ImportObservation{Status: observability.StatusInvalid})
		return nil, err
	}
	return s.ImportSnapshot(ctx, snap)
}

// ImportSnapshot validates snap and imports it atomically. A snapshot that
// fails validation writes nothing. Otherwise a session row is written first
// and finalized as completed or failed; on failure every other write of the
// import is rolled back and a *TransactionAbortError is returned.
func (s *Importer) ImportSnapshot(ctx context.Context, snap *snapshot.Snapshot) (*ImportResult, error) {
	start := s.now()

	tr := otel.Tracer("services/Importer")
	ctx, span := tr.Start(ctx, "ImportSnapshot")
	defer span.End()

	if err := snapshot.Validate(snap); err != nil {
		observability.RecordImport(observability.ImportObservation{Status: observability.StatusInvalid})
		span.SetStatus(codes.Error, "invalid snapshot")
		return nil, err
	}
	domainName := snap.DomainName()
	if domainName == "" {
		observability.RecordImport(observability.ImportObservation{Status: observability.StatusInvalid})
		return nil, &ValidationError{Missing: []string{"source.domain"}}
	}
	scrapedAt, _ := snap.Timestamp() // present once Validate passed
	span.SetAttributes(
		attribute.String("restaurant.name", snap.Restaurant.Name),
		attribute.String("domain.name", domainName),
		attribute.String("scraped_at", scrapedAt.Format(time.RFC3339)),
	)

	session := s.newSession(snap, scrapedAt, start)
	if err := repo.CreateSession(ctx, s.DB, session); err != nil {
		observability.RecordImport(observability.ImportObservation{Status: observability.StatusFailed, Duration: s.now().Sub(start)})
		return nil, &TransactionAbortError{Phase: PhaseValidated, Err: fmt.Errorf("create session: %w", err)}
	}
	log := s.Log.With().Str("session_id", session.ID).Str("restaurant", snap.Restaurant.Name).Str("domain", domainName).Logger()
	span.SetAttributes(attribute.String("session.id", session.ID))

	st := &importState{phase: PhaseValidated, outcomes: map[Outcome]int{}}
	txErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.run(ctx, tx, snap, domainName, scrapedAt, st)
	})

	// Finalization must land even when ctx was cancelled mid-import.
	fctx := context.WithoutCancel(ctx)
	duration := s.now().Sub(start)

	if txErr != nil {
		abort := &TransactionAbortError{SessionID: session.ID, Phase: st.phase, Err: txErr}
		entries := s.errorEntries(snap, st.warnings, start)
		entries = append(entries, domain.ErrorEntry{
			Type:      "transaction_abort",
			Message:   txErr.Error(),
			Timestamp: s.now().UTC().Format(time.RFC3339),
			Context:   map[string]any{"phase": string(st.phase)},
		})
		if err := s.finalize(fctx, session.ID, domain.SessionFailed, st.phase, nil, nil, 0, 0, entries, duration); err != nil {
			log.Error().Err(err).Msg("finalize failed session")
		}
		log.Error().Err(txErr).Str("phase", string(st.phase)).Msg("import aborted")
		span.RecordError(txErr)
		span.SetStatus(codes.Error, "import aborted")

		observability.RecordImport(observability.ImportObservation{Status: observability.StatusFailed, Duration: duration})
		s.publish(fctx, log, events.ImportFinished{
			SessionID:  session.ID,
			Status:     domain.SessionFailed,
			Restaurant: snap.Restaurant.Name,
			Domain:     domainName,
			ScrapedAt:  scrapedAt,
			Warnings:   len(st.warnings),
			Error:      txErr.Error(),
		})
		return nil, abort
	}

	res := &ImportResult{
		SessionID:    session.ID,
		Status:       domain.SessionCompleted,
		RestaurantID: st.restaurant.ID,
		DomainID:     st.domain.ID,
		ScrapedAt:    scrapedAt,
		Categories:   len(st.categories),
		Products:     st.products,
		NewPrices:    st.newPrices,
		Outcomes:     st.outcomes,
		Offers:       st.offers,
		Warnings:     st.warnings,
		Duration:     duration,
	}
	entries := s.errorEntries(snap, st.warnings, start)
	if err := s.finalize(fctx, session.ID, domain.SessionCompleted, PhaseCommitted, &st.restaurant.ID, &st.domain.ID, st.products, len(st.categories), entries, duration); err != nil {
		log.Error().Err(err).Msg("finalize completed session")
		return res, fmt.Errorf("finalize session %s: %w", session.ID, err)
	}

	log.Info().
		Str("restaurant_id", res.RestaurantID).
		Int("products", res.Products).
		Int("new_prices", res.NewPrices).
		Int("warnings", len(res.Warnings)).
		Dur("duration", duration).
		Msg("import completed")

	observability.RecordImport(observability.ImportObservation{
		Status:   observability.StatusCompleted,
		Duration: duration,
		Products: res.Products,
		Warnings: len(res.Warnings),
		Offers:   res.Offers.Transitions(),
	})
	s.publish(fctx, log, events.ImportFinished{
		SessionID:    session.ID,
		Status:       domain.SessionCompleted,
		RestaurantID: res.RestaurantID,
		DomainID:     res.DomainID,
		Restaurant:   st.restaurant.Name,
		Domain:       domainName,
		ScrapedAt:    scrapedAt,
		Products:     res.Products,
		NewPrices:    res.NewPrices,
		Warnings:     len(res.Warnings),
	})
	return res, nil
}

// run performs every write of one import on tx. st.phase always holds the
// last phase completed.
func (s *Importer) run(ctx context.Context, tx *gorm.DB, snap *snapshot.Snapshot, domainName string, scrapedAt time.Time, st *importState) error {
	dom, err := s.Catalog.EnsureDomain(ctx, tx, domainName)
	if err != nil {
		return err
	}
	rest, err := s.Catalog.EnsureRestaurant(ctx, tx, *snap.Restaurant)
	if err != nil {
		return err
	}
	if err := s.Catalog.LinkRestaurantDomain(ctx, tx, rest.ID, dom.ID, snap.Source.URL, snap.Restaurant.Name, s.now().UTC()); err != nil {
		return err
	}
	st.domain, st.restaurant, st.phase = dom, rest, PhaseResolved

	cats, err := s.Categories.Resolve(ctx, tx, rest.ID, snap.Categories)
	if err != nil {
		return err
	}
	st.categories, st.phase = cats, PhaseCategorized

	var valid []snapshot.Product
	var resolved []resolvedProduct
	for i := range snap.Products {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := snap.Products[i]
		if w, skip := extractionWarning(p); skip {
			st.warnings = append(st.warnings, w)
			continue
		}
		r, err := s.Products.Resolve(ctx, tx, rest.ID, p, cats)
		if err != nil {
			return err
		}
		st.outcomes[r.Outcome]++
		valid = append(valid, p)
		resolved = append(resolved, resolvedProduct{product: p, id: r.ProductID})
	}
	st.products, st.phase = len(resolved), PhaseProductsResolved

	offers, err := s.Offers.Reconcile(ctx, tx, rest.ID, ActiveOfferSet(valid), scrapedAt)
	if err != nil {
		return err
	}
	st.offers, st.phase = offers, PhaseOffersReconciled

	for _, rp := range resolved {
		var offerID *string
		if label := rp.product.OfferLabel(); label != "" {
			if id, ok := offers.IDs[label]; ok {
				offerID = &id
			}
		}
		inserted, err := s.Prices.Record(ctx, tx, rp.id, rp.product, offerID, scrapedAt)
		if err != nil {
			return err
		}
		if inserted {
			st.newPrices++
		}
	}
	st.phase = PhaseProductsPriced

	if _, err := repo.InsertRestaurantSnapshotIfAbsent(ctx, tx, restaurantSnapshot(snap, rest.ID, dom.ID, scrapedAt)); err != nil {
		return err
	}
	st.phase = PhaseSnapshotRecorded
	return nil
}

// extractionWarning reports whether p must be skipped and why.
func extractionWarning(p snapshot.Product) (ProductExtractionWarning, bool) {
	w := ProductExtractionWarning{Index: p.Index, Name: normalize.Name(p.Name)}
	if p.ExternalID != nil {
		w.ExternalID = *p.ExternalID
	}
	if err := snapshot.ValidateProduct(p); err != nil {
		w.Reason = err.Error()
		return w, true
	}
	return w, false
}

func restaurantSnapshot(snap *snapshot.Snapshot, restaurantID, domainID string, scrapedAt time.Time) *domain.RestaurantSnapshot {
	rs := &domain.RestaurantSnapshot{
		ID:              uuid.NewString(),
		RestaurantID:    restaurantID,
		DomainID:        domainID,
		Rating:          snap.Restaurant.Rating,
		DeliveryFee:     snap.Restaurant.DeliveryFee,
		MinimumOrder:    snap.Restaurant.MinimumOrder,
		DeliveryTime:    snap.Restaurant.DeliveryTime,
		TotalProducts:   len(snap.Products),
		TotalCategories: len(snap.Categories),
		ScrapedAt:       scrapedAt,
	}
	if m := snap.Metadata; m != nil {
		if m.ProductCount > 0 {
			rs.TotalProducts = m.ProductCount
		}
		if m.CategoryCount > 0 {
			rs.TotalCategories = m.CategoryCount
		}
	}
	return rs
}

func (s *Importer) newSession(snap *snapshot.Snapshot, scrapedAt, start time.Time) *domain.ScrapingSession {
	sess := &domain.ScrapingSession{
		ID:             uuid.NewString(),
		ScraperVersion: defaultScraperVersion,
		ScrapingMethod: defaultScrapingMethod,
		URL:            snap.Source.URL,
		ScrapedAt:      scrapedAt,
		StartedAt:      start.UTC(),
		Status:         domain.SessionStarted,
		Phase:          string(PhaseValidated),
	}
	if m := snap.Metadata; m != nil {
		if m.ScraperVersion != "" {
			sess.ScraperVersion = m.ScraperVersion
		}
		if m.ScrapingMethod != "" {
			sess.ScrapingMethod = m.ScrapingMethod
		}
		sess.ScrapeDurationSeconds = m.ProcessingDurationSeconds
	}
	return sess
}

// errorEntries merges the snapshot's own errors with the skipped products.
func (s *Importer) errorEntries(snap *snapshot.Snapshot, warnings []ProductExtractionWarning, at time.Time) []domain.ErrorEntry {
	out := make([]domain.ErrorEntry, 0, len(snap.Errors)+len(warnings))
	for _, e := range snap.Errors {
		out = append(out, domain.ErrorEntry(e))
	}
	ts := at.UTC().Format(time.RFC3339)
	for _, w := range warnings {
		out = append(out, w.Entry(ts))
	}
	return out
}

func (s *Importer) finalize(ctx context.Context, sessionID, status string, phase Phase, restaurantID, domainID *string, products, categories int, entries []domain.ErrorEntry, d time.Duration) error {
	completed := s.now().UTC()
	fields := map[string]any{
		"status":           status,
		"phase":            string(phase),
		"completed_at":     completed,
		"duration_seconds": d.Seconds(),
		"product_count":    products,
		"category_count":   categories,
		"error_count":      len(entries),
	}
	if restaurantID != nil {
		fields["restaurant_id"] = *restaurantID
	}
	if domainID != nil {
		fields["domain_id"] = *domainID
	}
	if len(entries) > 0 {
		b, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		fields["errors"] = datatypes.JSON(b)
	}
	return repo.UpdateSession(ctx, s.DB, sessionID, fields)
}

func (s *Importer) publish(ctx context.Context, log zerolog.Logger, ev events.ImportFinished) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("publish import event")
	}
}

func (s *Importer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ImportMany imports raws concurrently on at most Workers goroutines.
// Imports of the same restaurant are serialized through Locker. A failure
// of one snapshot never affects the others; items keep the input order.
func (s *Importer) ImportMany(ctx context.Context, raws [][]byte) []BatchItem {
	items := make([]BatchItem, len(raws))
	for i := range items {
		items[i].Index = i
	}
	s.runBatch(ctx, items, func(ctx context.Context, i int) (*ImportResult, error) {
		return s.importLocked(ctx, raws[i])
	})
	return items
}

// ImportFiles reads and imports the snapshot files at paths, as ImportMany
// does. Unreadable files fail individually.
func (s *Importer) ImportFiles(ctx context.Context, paths []string) []BatchItem {
	items := make([]BatchItem, len(paths))
	for i, p := range paths {
		items[i].Index = i
		items[i].Source = p
	}
	s.runBatch(ctx, items, func(ctx context.Context, i int) (*ImportResult, error) {
		raw, err := os.ReadFile(paths[i])
		if err != nil {
			return nil, err
		}
		return s.importLocked(ctx, raw)
	})
	return items
}

func (s *Importer) runBatch(ctx context.Context, items []BatchItem, fn func(context.Context, int) (*ImportResult, error)) {
	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := range items {
		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				items[i].Err = err
				continue
			}
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			items[i].Err = ctx.Err()
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					items[i].Err = fmt.Errorf("import panicked: %v", r)
				}
			}()
			items[i].Result, items[i].Err = fn(ctx, i)
		}(i)
	}
	wg.Wait()
}

// importLocked parses raw and imports it while holding the restaurant's lock.
func (s *Importer) importLocked(ctx context.Context, raw []byte) (*ImportResult, error) {
	snap, err := snapshot.Parse(raw)
	if err != nil {
		observability.RecordImport(observability.ImportObservation{Status: observability.StatusInvalid})
		return nil, err
	}
	if s.Locker == nil {
		return s.ImportSnapshot(ctx, snap)
	}
	release, err := s.Locker.Lock(ctx, RestaurantKey(snap.Restaurant))
	if err != nil {
		return nil, err
	}
	defer release()
	return s.ImportSnapshot(ctx, snap)
}

// RestaurantKey is the lock key of a restaurant's natural identity.
func RestaurantKey(r *snapshot.Restaurant) string {
	if r == nil {
		return ""
	}
	return normalize.Slug(r.Name) + "|" + normalize.Slug(r.BrandOrName())
}

// Failed counts the items of a batch that returned an error.
func Failed(items []BatchItem) int {
	n := 0
	for _, it := range items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

// IsValidation reports whether err rejected a snapshot before any write.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
