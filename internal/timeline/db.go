package timeline

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/timeline-service/internal/model"
)

// DBIndex 直接在 posts 表上排序分页，行本身就是索引项
type DBIndex struct {
	db *gorm.DB
}

func NewDBIndex(db *gorm.DB) *DBIndex { return &DBIndex{db: db} }

func (d *DBIndex) Insert(context.Context, Entry) error { return nil }

func (d *DBIndex) Remove(context.Context, Entry) error { return nil }

func (d *DBIndex) Reset(context.Context) error { return nil }

func (d *DBIndex) Page(ctx context.Context, f Filter, pageIndex, pageSize int) (Page, error) {
	if err := checkPage(pageIndex, pageSize); err != nil {
		return Page{}, err
	}
	q := d.db.WithContext(ctx).Model(&model.Post{})
	if !f.Global() {
		q = q.Where("user_id = ?", f.UserID)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page{}, err
	}
	start, end, more := window(pageIndex, pageSize, total)
	ids := make([]int64, 0, end-start)
	if start >= end {
		return Page{IDs: ids, Total: total}, nil
	}
	if err := q.Session(&gorm.Session{}).
		Order("created_at DESC").
		Order("id DESC").
		Offset(int(start)).
		Limit(int(end-start)).
		Pluck("id", &ids).Error; err != nil {
		return Page{}, err
	}
	return Page{IDs: ids, HasMore: more, Total: total}, nil
}
