package schedule

import (
	"fmt"
	"sort"
	"time"

	"floortrack/pkg/config"
)

// UnscheduledIndex is the synthetic period for timestamps outside every
// configured index period. Samples landing here are flagged, not dropped.
const UnscheduledIndex = 0

// Period one concrete index period on a specific date
type Period struct {
	IndexNumber int
	Start       time.Time
	End         time.Time
	BreakStart  *time.Time
	BreakEnd    *time.Time
}

// InBreak reports whether t falls inside the period's break window
func (p Period) InBreak(t time.Time) bool {
	if p.BreakStart == nil || p.BreakEnd == nil {
		return false
	}
	return !t.Before(*p.BreakStart) && t.Before(*p.BreakEnd)
}

// Contains reports whether t falls inside [Start, End)
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

type periodSpec struct {
	indexNumber int
	start       int // seconds since midnight
	end         int
	breakStart  int // -1 when absent
	breakEnd    int
}

// Resolver resolves timestamps to index periods from the configured
// daily timeline.
type Resolver struct {
	loc   *time.Location
	specs []periodSpec
}

// NewResolver builds a resolver from schedule configuration
func NewResolver(cfg config.ScheduleConfig) (*Resolver, error) {
	loc := time.Local
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule timezone %q: %w", cfg.Timezone, err)
		}
	}

	specs := make([]periodSpec, 0, len(cfg.Periods))
	for _, p := range cfg.Periods {
		if p.IndexNumber <= 0 {
			return nil, fmt.Errorf("index_number must be positive, got %d", p.IndexNumber)
		}
		start, err := parseClock(p.Start)
		if err != nil {
			return nil, fmt.Errorf("period %d start: %w", p.IndexNumber, err)
		}
		end, err := parseClock(p.End)
		if err != nil {
			return nil, fmt.Errorf("period %d end: %w", p.IndexNumber, err)
		}
		if end <= start {
			return nil, fmt.Errorf("period %d: end %s not after start %s", p.IndexNumber, p.End, p.Start)
		}
		spec := periodSpec{indexNumber: p.IndexNumber, start: start, end: end, breakStart: -1, breakEnd: -1}
		if p.BreakStart != "" && p.BreakEnd != "" {
			bs, err := parseClock(p.BreakStart)
			if err != nil {
				return nil, fmt.Errorf("period %d break_start: %w", p.IndexNumber, err)
			}
			be, err := parseClock(p.BreakEnd)
			if err != nil {
				return nil, fmt.Errorf("period %d break_end: %w", p.IndexNumber, err)
			}
			if bs < start || be > end || be <= bs {
				return nil, fmt.Errorf("period %d: break window outside period bounds", p.IndexNumber)
			}
			spec.breakStart = bs
			spec.breakEnd = be
		}
		specs = append(specs, spec)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].start < specs[j].start })
	for i := 1; i < len(specs); i++ {
		if specs[i].start < specs[i-1].end {
			return nil, fmt.Errorf("periods %d and %d overlap", specs[i-1].indexNumber, specs[i].indexNumber)
		}
	}

	return &Resolver{loc: loc, specs: specs}, nil
}

// Resolve returns the period containing t. The second return is false
// when t is outside every configured period; the returned period is then
// the synthetic unscheduled one covering the whole day.
func (r *Resolver) Resolve(t time.Time) (Period, bool) {
	t = t.In(r.loc)
	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.loc)

	for _, spec := range r.specs {
		if secs >= spec.start && secs < spec.end {
			return spec.materialize(midnight), true
		}
	}

	return Period{
		IndexNumber: UnscheduledIndex,
		Start:       midnight,
		End:         midnight.Add(24 * time.Hour),
	}, false
}

// PeriodsFor returns the full concrete timeline for one calendar date
func (r *Resolver) PeriodsFor(date time.Time) []Period {
	date = date.In(r.loc)
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, r.loc)
	periods := make([]Period, 0, len(r.specs))
	for _, spec := range r.specs {
		periods = append(periods, spec.materialize(midnight))
	}
	return periods
}

// DateKey formats t as the canonical YYYY-MM-DD aggregation key
func (r *Resolver) DateKey(t time.Time) string {
	return t.In(r.loc).Format("2006-01-02")
}

// Location returns the schedule's timezone
func (r *Resolver) Location() *time.Location {
	return r.loc
}

func (s periodSpec) materialize(midnight time.Time) Period {
	p := Period{
		IndexNumber: s.indexNumber,
		Start:       midnight.Add(time.Duration(s.start) * time.Second),
		End:         midnight.Add(time.Duration(s.end) * time.Second),
	}
	if s.breakStart >= 0 {
		bs := midnight.Add(time.Duration(s.breakStart) * time.Second)
		be := midnight.Add(time.Duration(s.breakEnd) * time.Second)
		p.BreakStart = &bs
		p.BreakEnd = &be
	}
	return p
}

func parseClock(s string) (int, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		// Allow HH:MM
		if _, err2 := fmt.Sscanf(s, "%d:%d", &h, &m); err2 != nil {
			return 0, fmt.Errorf("invalid clock value %q", s)
		}
		sec = 0
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("clock value out of range %q", s)
	}
	return h*3600 + m*60 + sec, nil
}
