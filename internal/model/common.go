package model

import (
	"fmt"
	"time"
)

// Unspecified 未能识别的合同方占位名
const Unspecified = "Neuvedeno"

// Period 一个月度数据包
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Start 月份第一天零点（UTC）
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodOf 取时间所在月份
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// TrailingWindow 以 now 所在月份结尾、共 months 个月的窗口，按时间正序
func TrailingWindow(now time.Time, months int) []Period {
	if months <= 0 {
		months = 1
	}
	first := PeriodOf(now).Start().AddDate(0, -(months - 1), 0)
	window := make([]Period, 0, months)
	for i := 0; i < months; i++ {
		window = append(window, PeriodOf(first.AddDate(0, i, 0)))
	}
	return window
}

// Point 地理坐标
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
