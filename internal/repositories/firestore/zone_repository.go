package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/souqly/api/internal/domain"
	pfirestore "github.com/souqly/api/internal/platform/firestore"
	"github.com/souqly/api/internal/repositories"
)

const zonesCollection = "deliveryZones"

type zoneDocument struct {
	Fee          int64     `firestore:"fee"`
	DeliveryDays int       `firestore:"deliveryDays"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// ZoneRepository stores delivery zones keyed by normalised name.
type ZoneRepository struct {
	zones *pfirestore.BaseRepository[zoneDocument]
}

// NewZoneRepository constructs a Firestore-backed zone repository.
func NewZoneRepository(provider *pfirestore.Provider) (*ZoneRepository, error) {
	if provider == nil {
		return nil, errors.New("zone repository requires firestore provider")
	}
	return &ZoneRepository{zones: pfirestore.NewBaseRepository[zoneDocument](provider, zonesCollection)}, nil
}

func (r *ZoneRepository) FindByName(ctx context.Context, name string) (domain.DeliveryZone, error) {
	key := domain.NormalizeZoneName(name)
	if key == "" {
		return domain.DeliveryZone{}, &repositories.NotFoundError{Entity: "zone", ID: name}
	}
	doc, err := r.zones.Get(ctx, key)
	if err != nil {
		return domain.DeliveryZone{}, err
	}
	return domain.DeliveryZone{Name: doc.ID, Fee: doc.Data.Fee, DeliveryDays: doc.Data.DeliveryDays, UpdatedAt: doc.Data.UpdatedAt}, nil
}

func (r *ZoneRepository) List(ctx context.Context) ([]domain.DeliveryZone, error) {
	docs, err := r.zones.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	zones := make([]domain.DeliveryZone, 0, len(docs))
	for _, doc := range docs {
		zones = append(zones, domain.DeliveryZone{Name: doc.ID, Fee: doc.Data.Fee, DeliveryDays: doc.Data.DeliveryDays, UpdatedAt: doc.Data.UpdatedAt})
	}
	return zones, nil
}

func (r *ZoneRepository) Upsert(ctx context.Context, zone domain.DeliveryZone) (domain.DeliveryZone, error) {
	zone.Name = domain.NormalizeZoneName(zone.Name)
	if zone.UpdatedAt.IsZero() {
		zone.UpdatedAt = time.Now().UTC()
	}
	if _, err := r.zones.Set(ctx, zone.Name, zoneDocument{Fee: zone.Fee, DeliveryDays: zone.DeliveryDays, UpdatedAt: zone.UpdatedAt.UTC()}); err != nil {
		return domain.DeliveryZone{}, err
	}
	return zone, nil
}
