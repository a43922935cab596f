/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the points engine from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Identities:
    IdentityDTO, StatsDTO, SeriesDTO, SeriesPointDTO, RecordPointsRequest

  Summary:
    SummaryDTO, SummaryRowDTO, RedemptionDTO

  Runs & progress:
    StartRunRequest, ProfilesRequest, ProgressDTO
    (runs are returned as runner.RunInfo)

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/points-engine/points"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RedemptionDTO is the redemption status for one balance.
type RedemptionDTO struct {
	Threshold int64           `json:"threshold"`
	Ready     bool            `json:"ready"`
	Remaining int64           `json:"remaining"`
	Progress  decimal.Decimal `json:"progress"`
}

// IdentityDTO is one row of the identity list.
type IdentityDTO struct {
	Identity   string         `json:"identity"`
	Label      string         `json:"label,omitempty"`
	Number     int            `json:"number,omitempty"`
	Configured bool           `json:"configured"`
	HasData    bool           `json:"has_data"`
	Current    int64          `json:"current"`
	LastRecord string         `json:"last_record,omitempty"`
	Redemption *RedemptionDTO `json:"redemption,omitempty"`
}

// StatsDTO is the full statistics block for one identity.
type StatsDTO struct {
	Identity     string        `json:"identity"`
	Current      int64         `json:"current"`
	NetGain      int64         `json:"net_gain"`
	TodayGain    int64         `json:"today_gain"`
	TodaySpend   int64         `json:"today_spend"`
	MonthGain    int64         `json:"month_gain"`
	MonthSpend   int64         `json:"month_spend"`
	TotalGain    int64         `json:"total_gain"`
	TotalSpend   int64         `json:"total_spend"`
	DailyAverage *int64        `json:"daily_average"`
	FirstRecord  string        `json:"first_record"`
	LastRecord   string        `json:"last_record"`
	Records      int           `json:"records"`
	Redemption   RedemptionDTO `json:"redemption"`
}

type SeriesPointDTO struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// SeriesDTO is a chart series.
type SeriesDTO struct {
	Identity string           `json:"identity"`
	Days     int              `json:"days"`
	Points   []SeriesPointDTO `json:"points"`
}

// RecordPointsRequest records a manual reading.
type RecordPointsRequest struct {
	Points string `json:"points"`
	Label  string `json:"label"`
}

type SummaryRowDTO struct {
	Identity   string        `json:"identity"`
	Label      string        `json:"label,omitempty"`
	HasData    bool          `json:"has_data"`
	Current    int64         `json:"current"`
	TodayGain  int64         `json:"today_gain"`
	MonthGain  int64         `json:"month_gain"`
	Redemption RedemptionDTO `json:"redemption"`
}

// SummaryDTO covers every identity in the history.
type SummaryDTO struct {
	Rows          []SummaryRowDTO `json:"rows"`
	TotalPoints   int64           `json:"total_points"`
	TotalToday    int64           `json:"total_today"`
	TotalMonth    int64           `json:"total_month"`
	ReadyAccounts int             `json:"ready_accounts"`
}

// StartRunRequest names the profiles to run; empty means all configured.
type StartRunRequest struct {
	Profiles []string `json:"profiles"`
}

// ProfilesRequest names profiles; empty means all configured.
type ProfilesRequest struct {
	Profiles []string `json:"profiles"`
}

// ProgressDTO is today's progress for one profile.
type ProgressDTO struct {
	Identity  string `json:"identity"`
	Label     string `json:"label,omitempty"`
	Number    int    `json:"number"`
	Completed int    `json:"completed"`
	Target    int    `json:"target"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRedemptionDTO(r points.Redemption) RedemptionDTO {
	return RedemptionDTO{
		Threshold: r.Threshold,
		Ready:     r.Ready,
		Remaining: r.Remaining,
		Progress:  r.Progress,
	}
}

func toStatsDTO(s *points.Stats, threshold int64) StatsDTO {
	dto := StatsDTO{
		Identity:    string(s.Identity),
		Current:     s.Current,
		NetGain:     s.NetGain,
		TodayGain:   s.TodayGain,
		TodaySpend:  s.TodaySpend,
		MonthGain:   s.MonthGain,
		MonthSpend:  s.MonthSpend,
		TotalGain:   s.TotalGain,
		TotalSpend:  s.TotalSpend,
		FirstRecord: s.FirstRecord.String(),
		LastRecord:  s.LastRecord.Format(time.RFC3339),
		Records:     s.Records,
		Redemption:  toRedemptionDTO(points.EvaluateRedemption(s.Current, threshold)),
	}
	if s.HasDailyAverage {
		avg := s.DailyAverage
		dto.DailyAverage = &avg
	}
	return dto
}

func toSeriesDTO(id points.Identity, days int, series []points.SeriesPoint) SeriesDTO {
	out := SeriesDTO{Identity: string(id), Days: days, Points: make([]SeriesPointDTO, len(series))}
	for i, p := range series {
		out.Points[i] = SeriesPointDTO{Date: p.Date.String(), Value: p.Value}
	}
	return out
}

func toSummaryDTO(s *points.Summary) SummaryDTO {
	dto := SummaryDTO{
		Rows:          make([]SummaryRowDTO, len(s.Rows)),
		TotalPoints:   s.TotalPoints,
		TotalToday:    s.TotalToday,
		TotalMonth:    s.TotalMonth,
		ReadyAccounts: s.ReadyAccounts,
	}
	for i, r := range s.Rows {
		dto.Rows[i] = SummaryRowDTO{
			Identity:   string(r.Identity),
			Label:      r.Label,
			HasData:    r.HasData,
			Current:    r.Current,
			TodayGain:  r.TodayGain,
			MonthGain:  r.MonthGain,
			Redemption: toRedemptionDTO(r.Redemption),
		}
	}
	return dto
}
