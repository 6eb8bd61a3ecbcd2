// Package period вычисляет границы отчётных периодов в локальном времени партнёра.
//
// Локальное время задаётся фиксированным смещением от UTC, без базы часовых поясов
// и без учёта настроек часового пояса хоста.
package period

import (
	"strings"
	"time"
)

// Period задаёт именованный отчётный период.
type Period string

const (
	Today     Period = "today"
	Yesterday Period = "yesterday"
	Last7     Period = "last7"
	Last30    Period = "last30"
	Custom    Period = "custom"
)

const (
	day        = 24 * time.Hour
	dateLayout = "2006-01-02"
)

// ParsePeriod разбирает имя периода. Неизвестные имена дают Today.
func ParsePeriod(name string) Period {
	switch p := Period(strings.ToLower(strings.TrimSpace(name))); p {
	case Today, Yesterday, Last7, Last30, Custom:
		return p
	default:
		return Today
	}
}

// Range задаёт полуоткрытый интервал [Start, End) в абсолютном времени.
type Range struct {
	Start         time.Time
	End           time.Time
	Label         string
	Period        Period
	OffsetMinutes int
}

// Resolve возвращает интервал для периода p. Непустой referenceDate (YYYY-MM-DD)
// закрепляет «сегодня» за полуднем указанной локальной даты. Ошибок не возвращает:
// нераспознанная дата заменяется текущим моментом now.
// last7 и last30 охватывают 7 и 30 локальных суток, включая сегодняшние.
func Resolve(p Period, referenceDate string, offsetMinutes int, now time.Time) Range {
	offset := time.Duration(offsetMinutes) * time.Minute
	now = now.UTC()

	pinned := false
	if referenceDate = strings.TrimSpace(referenceDate); referenceDate != "" {
		if d, err := time.Parse(dateLayout, referenceDate); err == nil {
			// d означает полночь даты в «сдвинутом» пространстве; полдень переводим обратно в абсолютное время.
			now = d.Add(12 * time.Hour).Add(-offset)
			pinned = true
		}
	}

	if p == Custom && !pinned {
		p = Today
	}

	midnight := localMidnight(now, offset)

	r := Range{Period: p, OffsetMinutes: offsetMinutes}
	switch p {
	case Yesterday:
		r.Start = midnight.Add(-day)
		r.End = midnight
		r.Label = "Yesterday"
	case Last7, Last30:
		n := 7
		r.Label = "Last 7 days"
		if p == Last30 {
			n = 30
			r.Label = "Last 30 days"
		}
		r.Start = midnight.Add(-time.Duration(n-1) * day)
		r.End = now
		if pinned {
			r.End = midnight.Add(day)
		}
	case Custom:
		r.Start = midnight
		r.End = midnight.Add(day)
		r.Label = now.Add(offset).Format("02/01/2006")
	default:
		r.Period = Today
		r.Start = midnight
		r.End = midnight.Add(day)
		r.Label = "Today"
	}

	return r
}

// localMidnight возвращает абсолютный момент локальной полуночи того дня, в который попадает t.
func localMidnight(t time.Time, offset time.Duration) time.Time {
	shifted := t.UTC().Add(offset)
	y, m, d := shifted.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(-offset)
}

func (r Range) offset() time.Duration {
	return time.Duration(r.OffsetMinutes) * time.Minute
}

// Contains сообщает, попадает ли t в интервал.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// SingleDay сообщает, укладывается ли интервал в одни локальные сутки.
func (r Range) SingleDay() bool {
	return r.End.Sub(r.Start) <= day && r.LocalDate(r.Start) == r.LocalDate(r.End.Add(-time.Nanosecond))
}

// LocalDate возвращает локальную дату момента t в формате YYYY-MM-DD.
func (r Range) LocalDate(t time.Time) string {
	return t.UTC().Add(r.offset()).Format(dateLayout)
}

// LocalHour возвращает локальный час момента t (0–23).
func (r Range) LocalHour(t time.Time) int {
	return t.UTC().Add(r.offset()).Hour()
}

// DateBounds возвращает первую и последнюю локальные даты интервала включительно.
func (r Range) DateBounds() (string, string) {
	if !r.End.After(r.Start) {
		d := r.LocalDate(r.Start)
		return d, d
	}
	return r.LocalDate(r.Start), r.LocalDate(r.End.Add(-time.Nanosecond))
}

// Days возвращает локальные даты интервала по возрастанию.
func (r Range) Days() []string {
	first, last := r.DateBounds()
	start, _ := time.Parse(dateLayout, first)
	end, _ := time.Parse(dateLayout, last)

	var days []string
	for d := start; !d.After(end); d = d.Add(day) {
		days = append(days, d.Format(dateLayout))
	}
	return days
}

// ContainsDate сообщает, попадает ли локальная дата YYYY-MM-DD в интервал.
func (r Range) ContainsDate(date string) bool {
	first, last := r.DateBounds()
	return date >= first && date <= last
}
