package garmin

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/roessland/wearabledump/dump"
)

const activityPageSize = 100

// Metrics returns the Garmin metric set in download order
func Metrics() []dump.Metric[*Session] {
	return []dump.Metric[*Session]{
		{Name: "profile", Fetch: fetchProfile},
		{Name: "daily_summary", Fetch: fetchDailySummary},
		{Name: "heart_rate", Fetch: fetchHeartRate},
		{Name: "sleep", Fetch: fetchSleep},
		{Name: "stress", Fetch: fetchStress},
		{Name: "hrv", Fetch: fetchHRV},
		{Name: "body_battery", Fetch: fetchBodyBattery},
		{Name: "activities", List: true, Fetch: fetchActivities},
		{Name: "devices", List: true, Fetch: fetchDevices},
	}
}

func fetchProfile(ctx context.Context, s *Session, _ time.Time) (any, error) {
	return s.GetJSON(ctx, profilePath, nil)
}

func fetchDailySummary(ctx context.Context, s *Session, day time.Time) (any, error) {
	path := "/usersummary-service/usersummary/daily/" + url.PathEscape(s.DisplayName)
	return s.GetJSON(ctx, path, url.Values{"calendarDate": {dump.FormatDate(day)}})
}

func fetchHeartRate(ctx context.Context, s *Session, day time.Time) (any, error) {
	path := "/wellness-service/wellness/dailyHeartRate/" + url.PathEscape(s.DisplayName)
	return s.GetJSON(ctx, path, url.Values{"date": {dump.FormatDate(day)}})
}

func fetchSleep(ctx context.Context, s *Session, day time.Time) (any, error) {
	date := dump.FormatDate(day)
	path := "/wellness-service/wellness/dailySleepData/" + url.PathEscape(s.DisplayName)
	payload, err := s.GetJSON(ctx, path, url.Values{
		"date":                  {date},
		"nonSleepBufferMinutes": {"60"},
	})
	if err == nil || ctx.Err() != nil {
		return payload, err
	}

	// Some accounts only answer on the dated path
	fallback, fallbackErr := s.GetJSON(ctx, path+"/"+date, nil)
	if fallbackErr != nil {
		return nil, err
	}
	return fallback, nil
}

func fetchStress(ctx context.Context, s *Session, day time.Time) (any, error) {
	return s.GetJSON(ctx, "/wellness-service/wellness/dailyStress/"+dump.FormatDate(day), nil)
}

func fetchHRV(ctx context.Context, s *Session, day time.Time) (any, error) {
	return s.GetJSON(ctx, "/hrv-service/hrv/"+dump.FormatDate(day), nil)
}

func fetchBodyBattery(ctx context.Context, s *Session, day time.Time) (any, error) {
	date := dump.FormatDate(day)
	return s.GetJSON(ctx, "/wellness-service/wellness/bodyBattery/reports/daily", url.Values{
		"startDate": {date},
		"endDate":   {date},
	})
}

func fetchActivities(ctx context.Context, s *Session, day time.Time) (any, error) {
	date := dump.FormatDate(day)
	payload, err := s.GetJSON(ctx, "/activitylist-service/activities/search/activities", url.Values{
		"startDate": {date},
		"endDate":   {date},
		"start":     {"0"},
		"limit":     {fmt.Sprint(activityPageSize)},
	})
	if err != nil {
		return nil, err
	}
	return asList(payload)
}

func fetchDevices(ctx context.Context, s *Session, _ time.Time) (any, error) {
	payload, err := s.GetJSON(ctx, "/device-service/deviceregistration/devices", nil)
	if err != nil {
		return nil, err
	}
	return asList(payload)
}

// asList normalizes a list payload; null becomes an empty list
func asList(payload any) ([]any, error) {
	switch v := payload.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", payload)
	}
}
