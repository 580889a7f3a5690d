package idgen

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sequence 每个 kind 一行
type Sequence struct {
	Kind  string `gorm:"primaryKey;type:varchar(32)"`
	Value int64  `gorm:"not null"`
}

func (Sequence) TableName() string { return "id_sequences" }

// DB 在事务内自增序列行
type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) *DB { return &DB{db: db} }

// Migrate creates the sequence table and one row per kind.
func (d *DB) Migrate(ctx context.Context) error {
	if err := d.db.WithContext(ctx).AutoMigrate(&Sequence{}); err != nil {
		return err
	}
	rows := []Sequence{{Kind: string(KindUser)}, {Kind: string(KindPost)}}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (d *DB) Next(ctx context.Context, kind Kind) (int64, error) {
	var seq Sequence
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Sequence{}).
			Where("kind = ?", string(kind)).
			UpdateColumn("value", gorm.Expr("value + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("unknown id kind %q", kind)
		}
		return tx.Where("kind = ?", string(kind)).First(&seq).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("sequence %q missing", kind)
		}
		return 0, err
	}
	return seq.Value, nil
}
