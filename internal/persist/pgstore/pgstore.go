// Package pgstore persists the room store's overlays in Postgres through
// gorm, for deployments where the discovery daemon runs server side on
// behalf of a user session.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/paulmach/orb"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/alimutlu55/localchat-discovery/internal/room"
	"github.com/alimutlu55/localchat-discovery/internal/store"
)

type roomRecord struct {
	ID               string `gorm:"primaryKey"`
	Lng              float64
	Lat              float64
	Title            string
	Category         string
	ParticipantCount int
	Status           string
	ExpiresAt        time.Time
	CreatedAt        time.Time
	IsCreator        bool
}

func (roomRecord) TableName() string { return "discovery_rooms" }

type membershipRecord struct {
	RoomID  string `gorm:"primaryKey"`
	Overlay string `gorm:"primaryKey"`
	AddedAt time.Time
}

func (membershipRecord) TableName() string { return "discovery_memberships" }

type Store struct {
	db  *gorm.DB
	sql *sql.DB
}

// Open connects with pgx, hands the pool to gorm and migrates the two
// tables.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	sqlDB := stdlib.OpenDB(*cfg)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("opening gorm: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&roomRecord{}, &membershipRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating: %w", err)
	}
	return &Store{db: db, sql: sqlDB}, nil
}

func (s *Store) Load(ctx context.Context) (store.Persisted, error) {
	var rooms []roomRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&rooms).Error; err != nil {
		return store.Persisted{}, err
	}
	var members []membershipRecord
	if err := s.db.WithContext(ctx).Order("room_id").Find(&members).Error; err != nil {
		return store.Persisted{}, err
	}
	return fromRecords(rooms, members), nil
}

// Save replaces the stored state in one transaction.
func (s *Store) Save(ctx context.Context, p store.Persisted) error {
	rooms, members := toRecords(p)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&membershipRecord{}).Error; err != nil {
			return err
		}
		if len(rooms) == 0 {
			return all.Delete(&roomRecord{}).Error
		}

		ids := make([]string, len(rooms))
		for i, r := range rooms {
			ids[i] = r.ID
		}
		if err := tx.Where("id NOT IN ?", ids).Delete(&roomRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rooms).Error; err != nil {
			return err
		}
		if len(members) > 0 {
			return tx.Create(&members).Error
		}
		return nil
	})
}

func (s *Store) Close() error { return s.sql.Close() }

func toRecords(p store.Persisted) ([]roomRecord, []membershipRecord) {
	rooms := make([]roomRecord, 0, len(p.Rooms))
	for _, r := range p.Rooms {
		rooms = append(rooms, roomRecord{
			ID:               r.ID,
			Lng:              r.Location.Lon(),
			Lat:              r.Location.Lat(),
			Title:            r.Title,
			Category:         string(r.Category),
			ParticipantCount: r.ParticipantCount,
			Status:           string(r.Status),
			ExpiresAt:        r.ExpiresAt,
			CreatedAt:        r.CreatedAt,
			IsCreator:        r.IsCreator,
		})
	}

	var members []membershipRecord
	add := func(o room.Overlay, ids []string) {
		for _, id := range ids {
			members = append(members, membershipRecord{RoomID: id, Overlay: string(o)})
		}
	}
	add(room.Joined, p.Joined)
	add(room.Created, p.Created)
	add(room.Hidden, p.Hidden)
	for id, at := range p.Pending {
		members = append(members, membershipRecord{RoomID: id, Overlay: string(room.Pending), AddedAt: at})
	}
	return rooms, members
}

func fromRecords(rooms []roomRecord, members []membershipRecord) store.Persisted {
	var p store.Persisted
	for _, r := range rooms {
		p.Rooms = append(p.Rooms, room.Room{
			ID:               r.ID,
			Location:         orb.Point{r.Lng, r.Lat},
			Title:            r.Title,
			Category:         room.Category(r.Category),
			ParticipantCount: r.ParticipantCount,
			Status:           room.Status(r.Status),
			ExpiresAt:        r.ExpiresAt,
			CreatedAt:        r.CreatedAt,
			IsCreator:        r.IsCreator,
		})
	}
	for _, m := range members {
		switch room.Overlay(m.Overlay) {
		case room.Joined:
			p.Joined = append(p.Joined, m.RoomID)
		case room.Created:
			p.Created = append(p.Created, m.RoomID)
		case room.Hidden:
			p.Hidden = append(p.Hidden, m.RoomID)
		case room.Pending:
			if p.Pending == nil {
				p.Pending = map[string]time.Time{}
			}
			p.Pending[m.RoomID] = m.AddedAt
		}
	}
	return p
}
