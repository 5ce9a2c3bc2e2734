// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// ImageModel is one stored EEPROM image, keyed by device name.
type ImageModel struct {
	bun.BaseModel `bun:"table:eeprom_images"`

	Name      string    `bun:"name,pk"`
	Data      []byte    `bun:"data"`
	UpdatedAt time.Time `bun:"updated_at"`
}

// ImageMedium implements eeprom.Medium over an eeprom_images row.
type ImageMedium struct {
	db   *bun.DB
	name string
}

// NewImageMedium ensures the images table exists and returns a medium for
// the row named name.
func NewImageMedium(ctx context.Context, db *bun.DB, name string) (*ImageMedium, error) {
	if name == "" {
		return nil, errors.New("db: image name must not be empty")
	}
	if _, err := db.NewCreateTable().Model((*ImageModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("create eeprom_images table: %w", err)
	}
	return &ImageMedium{db: db, name: name}, nil
}

// OpenImageMedium opens the database and returns a medium for name.
func OpenImageMedium(ctx context.Context, dbType, dsn, name string) (*ImageMedium, error) {
	bunDB, err := Open(dbType, dsn)
	if err != nil {
		return nil, err
	}
	m, err := NewImageMedium(ctx, bunDB, name)
	if err != nil {
		_ = bunDB.Close()
		return nil, err
	}
	return m, nil
}

// Load implements eeprom.Medium. A missing row reads as an erased region.
func (m *ImageMedium) Load(ctx context.Context, _ int) ([]byte, error) {
	var row ImageModel
	err := m.db.NewSelect().Model(&row).Where("name = ?", m.name).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		dbLogf("db: no image stored for %q", m.name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load image %q: %w", m.name, err)
	}
	return row.Data, nil
}

// Flush implements eeprom.Medium. The row is replaced inside a transaction
// so readers see either the previous or the new image.
func (m *ImageMedium) Flush(ctx context.Context, image []byte) error {
	row := &ImageModel{
		Name:      m.name,
		Data:      append([]byte(nil), image...),
		UpdatedAt: time.Now().UTC(),
	}
	err := m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*ImageModel)(nil)).Where("name = ?", m.name).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(row).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("flush image %q: %w", m.name, err)
	}
	dbLogf("db: flushed %d bytes for %q", len(image), m.name)
	return nil
}

// Names returns the names of all stored images.
func (m *ImageMedium) Names(ctx context.Context) ([]string, error) {
	var names []string
	if err := m.db.NewSelect().Model((*ImageModel)(nil)).Column("name").Order("name ASC").Scan(ctx, &names); err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return names, nil
}

// Close closes the underlying database.
func (m *ImageMedium) Close() error {
	return m.db.Close()
}
