package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"parkgate/internal/domain/gate"
)

var ErrNotFound = errors.New("not found")

// Store persists and queries the core's durable state.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

type Vehicle struct {
	ID          int64  `gorm:"primaryKey"`
	Plate       string `gorm:"not null;uniqueIndex"`
	Description *string
	Authorized  bool `gorm:"not null"`
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	AccessLevel *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RecognitionEvent struct {
	ID         string `gorm:"primaryKey"`
	CameraID   string `gorm:"not null"`
	Plate      string `gorm:"not null"`
	RawPlate   string `gorm:"not null"`
	Confidence float64
	EventTime  time.Time      `gorm:"not null"`
	Candidates datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time
}

type AccessDecision struct {
	ID        int64     `gorm:"primaryKey"`
	EventID   string    `gorm:"not null"`
	CameraID  string    `gorm:"not null"`
	Plate     string    `gorm:"not null"`
	Granted   bool      `gorm:"not null"`
	Reason    string    `gorm:"not null"`
	DecidedAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

type ParkingSession struct {
	ID              int64     `gorm:"primaryKey"`
	Plate           string    `gorm:"not null;index"`
	EntryTime       time.Time `gorm:"not null"`
	ExitTime        *time.Time
	DurationSeconds int64
	Fee             decimal.Decimal `gorm:"type:numeric(10,2)"`
	PaymentStatus   string          `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LoadVehicles reads the full registry for snapshotting.
func (s *Store) LoadVehicles(ctx context.Context) ([]gate.Vehicle, error) {
	var rows []Vehicle
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	vehicles := make([]gate.Vehicle, 0, len(rows))
	for _, r := range rows {
		v := gate.Vehicle{
			Plate:      r.Plate,
			Authorized: r.Authorized,
			ValidFrom:  r.ValidFrom,
			ValidUntil: r.ValidUntil,
		}
		if r.Description != nil {
			v.Description = *r.Description
		}
		if r.AccessLevel != nil {
			v.AccessLevel = *r.AccessLevel
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

// SaveRecognitionEvent persists a voted event with its contributing
// candidates for audit. Image buffers are not persisted here.
func (s *Store) SaveRecognitionEvent(ctx context.Context, ev gate.RecognitionEvent) error {
	candidates, err := json.Marshal(ev.Candidates)
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}
	row := RecognitionEvent{
		ID:         ev.ID,
		CameraID:   ev.CameraID,
		Plate:      ev.Plate,
		RawPlate:   ev.RawPlate,
		Confidence: ev.Confidence,
		EventTime:  ev.EventTime,
		Candidates: candidates,
		CreatedAt:  time.Now(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// SaveAccessDecision appends one decision to the audit log.
func (s *Store) SaveAccessDecision(ctx context.Context, d gate.AccessDecision) error {
	row := AccessDecision{
		EventID:   d.Event.ID,
		CameraID:  d.Event.CameraID,
		Plate:     d.Event.Plate,
		Granted:   d.Granted,
		Reason:    string(d.Reason),
		DecidedAt: d.DecidedAt,
		CreatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ActiveSession returns the plate's open session, or nil when none exists.
func (s *Store) ActiveSession(ctx context.Context, plate string) (*gate.ParkingSession, error) {
	var row ParkingSession
	err := s.db.WithContext(ctx).
		Where("plate = ? AND exit_time IS NULL", plate).
		Order("entry_time DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	session := sessionFromRow(row)
	return &session, nil
}

func (s *Store) CreateSession(ctx context.Context, session *gate.ParkingSession) error {
	row := ParkingSession{
		Plate:         session.Plate,
		EntryTime:     session.EntryTime,
		Fee:           session.Fee,
		PaymentStatus: string(session.PaymentStatus),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	session.ID = row.ID
	return nil
}

func (s *Store) CompleteSession(ctx context.Context, session *gate.ParkingSession) error {
	updates := map[string]interface{}{
		"exit_time":        session.ExitTime,
		"duration_seconds": int64(session.Duration.Seconds()),
		"fee":              session.Fee,
		"payment_status":   string(session.PaymentStatus),
		"updated_at":       time.Now(),
	}
	return s.db.WithContext(ctx).
		Model(&ParkingSession{}).
		Where("id = ?", session.ID).
		Updates(updates).Error
}

// WaiveSession marks a session waived with zero fee, for operator overrides.
// Sessions already in a terminal payment state are left untouched.
func (s *Store) WaiveSession(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).
		Model(&ParkingSession{}).
		Where("id = ? AND payment_status = ?", id, string(gate.PaymentUnpaid)).
		Updates(map[string]interface{}{
			"fee":            decimal.Zero,
			"payment_status": string(gate.PaymentWaived),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindEvents lists recognition events, newest first.
func (s *Store) FindEvents(ctx context.Context, plate *string, from, to *time.Time, limit, offset int) ([]RecognitionEvent, error) {
	query := s.db.WithContext(ctx).Model(&RecognitionEvent{})
	if plate != nil {
		query = query.Where("plate = ?", *plate)
	}
	if from != nil {
		query = query.Where("event_time >= ?", *from)
	}
	if to != nil {
		query = query.Where("event_time <= ?", *to)
	}
	query = query.Order("event_time DESC").Limit(clampLimit(limit)).Offset(maxInt(offset, 0))

	var rows []RecognitionEvent
	err := query.Find(&rows).Error
	return rows, err
}

// FindDecisions lists the access decision log, newest first.
func (s *Store) FindDecisions(ctx context.Context, plate *string, limit, offset int) ([]AccessDecision, error) {
	query := s.db.WithContext(ctx).Model(&AccessDecision{})
	if plate != nil {
		query = query.Where("plate = ?", *plate)
	}
	query = query.Order("decided_at DESC").Limit(clampLimit(limit)).Offset(maxInt(offset, 0))

	var rows []AccessDecision
	err := query.Find(&rows).Error
	return rows, err
}

// FindSessions lists parking sessions, newest entries first.
func (s *Store) FindSessions(ctx context.Context, plate *string, activeOnly bool, limit, offset int) ([]gate.ParkingSession, error) {
	query := s.db.WithContext(ctx).Model(&ParkingSession{})
	if plate != nil {
		query = query.Where("plate = ?", *plate)
	}
	if activeOnly {
		query = query.Where("exit_time IS NULL")
	}
	query = query.Order("entry_time DESC").Limit(clampLimit(limit)).Offset(maxInt(offset, 0))

	var rows []ParkingSession
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	sessions := make([]gate.ParkingSession, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, sessionFromRow(r))
	}
	return sessions, nil
}

func sessionFromRow(r ParkingSession) gate.ParkingSession {
	return gate.ParkingSession{
		ID:            r.ID,
		Plate:         r.Plate,
		EntryTime:     r.EntryTime,
		ExitTime:      r.ExitTime,
		Duration:      time.Duration(r.DurationSeconds) * time.Second,
		Fee:           r.Fee,
		PaymentStatus: gate.PaymentStatus(r.PaymentStatus),
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
