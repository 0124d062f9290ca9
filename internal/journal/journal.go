// Package journal persists earnings records to a local sqlite file and
// serves the two read operations the status API and round summaries need:
// today's running total and a daily rollup over the last N days.
package journal

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tos-network/coal-miner/internal/util"
)

// Resource names the two tokens the pool tracks per round.
type Resource string

const (
	ResourceCoal Resource = "coal"
	ResourceOre  Resource = "ore"
)

// Record is one row of the pool_submission_results table: exactly the
// columns spec.md documents, no more, no less.
type Record struct {
	ID                  uint `gorm:"primaryKey"`
	PoolDifficulty      uint32
	PoolEarnedCoal      int64
	PoolEarnedOre       int64
	MinerPercentageCoal float64
	MinerPercentageOre  float64
	MinerDifficulty     uint32
	MinerEarnedCoal     int64
	MinerEarnedOre      int64
	CreatedAt           time.Time `gorm:"autoCreateTime"`
}

// TableName pins the table name so it matches spec.md's schema regardless
// of gorm's pluralization conventions.
func (Record) TableName() string { return "pool_submission_results" }

// DayTotal is one row of a daily rollup.
type DayTotal struct {
	Date  string
	Total int64
}

// Journal is the append-only earnings store. The supervisor is the sole
// writer; the status API and round-summary printer are the only readers.
type Journal struct {
	db *gorm.DB
}

// Open creates (if absent) and migrates app_db_merged.db3 at path.
func Open(path string) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Append writes exactly one row. Failures are logged and swallowed: a
// full disk must not crash the miner.
func (j *Journal) Append(r Record) {
	if err := j.db.Create(&r).Error; err != nil {
		util.Errorf("journal: append failed, continuing without persisting this round: %v", err)
	}
}

// SumToday returns the sum of miner_earned_<resource> for rows created
// since local midnight. Absent rows sum to zero.
func (j *Journal) SumToday(resource Resource) int64 {
	column, err := earnedColumn(resource)
	if err != nil {
		util.Errorf("journal: sum_today: %v", err)
		return 0
	}

	start := startOfLocalDay(time.Now())

	var total int64
	row := j.db.Model(&Record{}).
		Select("COALESCE(SUM(" + column + "), 0)").
		Where("created_at >= ?", start)
	if err := row.Scan(&total).Error; err != nil {
		util.Errorf("journal: sum_today query failed: %v", err)
		return 0
	}
	return total
}

// Daily returns an ascending (yyyy-mm-dd, sum) sequence for the last days
// calendar days, including days with no rows (total 0).
func (j *Journal) Daily(resource Resource, days int) []DayTotal {
	column, err := earnedColumn(resource)
	if err != nil {
		util.Errorf("journal: daily: %v", err)
		return nil
	}
	if days <= 0 {
		return nil
	}

	now := time.Now()
	start := startOfLocalDay(now).AddDate(0, 0, -(days - 1))

	type row struct {
		Day   string
		Total int64
	}
	var rows []row
	err = j.db.Model(&Record{}).
		Select("strftime('%Y-%m-%d', created_at, 'localtime') AS day, COALESCE(SUM(" + column + "), 0) AS total").
		Where("created_at >= ?", start).
		Group("day").
		Order("day ASC").
		Scan(&rows).Error
	if err != nil {
		util.Errorf("journal: daily query failed: %v", err)
		return nil
	}

	byDay := make(map[string]int64, len(rows))
	for _, r := range rows {
		byDay[r.Day] = r.Total
	}

	out := make([]DayTotal, 0, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		key := d.Format("2006-01-02")
		out = append(out, DayTotal{Date: key, Total: byDay[key]})
	}
	return out
}

// Close releases the underlying sqlite connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func earnedColumn(resource Resource) (string, error) {
	switch resource {
	case ResourceCoal:
		return "miner_earned_coal", nil
	case ResourceOre:
		return "miner_earned_ore", nil
	default:
		return "", &unknownResourceError{resource}
	}
}

func startOfLocalDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type unknownResourceError struct {
	resource Resource
}

func (e *unknownResourceError) Error() string {
	return "journal: unknown resource " + string(e.resource)
}
