package reconciler

import (
	"sort"

	"github.com/EricW9888/ScreenGuardian/internal/models"
)

// MergeDaily collapses rows sharing a date into the row with the lowest id, whose
// totals become the field-wise sum of the group. It returns one survivor per date,
// ordered by date, and the ids of the absorbed rows. Merging its own output again
// yields the same survivors and no deletions.
func MergeDaily(rows []models.DailyRow) ([]models.DailyRow, []int64) {
	groups := make(map[string][]models.DailyRow)
	for _, r := range rows {
		groups[r.Date] = append(groups[r.Date], r)
	}

	var survivors []models.DailyRow
	var deleted []int64
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		keep := group[0]
		for _, r := range group[1:] {
			keep.Totals = keep.Totals.Add(r.Totals)
			deleted = append(deleted, r.ID)
		}
		survivors = append(survivors, keep)
	}

	sort.Slice(survivors, func(i, j int) bool { return survivors[i].Date < survivors[j].Date })
	sort.Slice(deleted, func(i, j int) bool { return deleted[i] < deleted[j] })
	return survivors, deleted
}

// MergeHourly is MergeDaily keyed by (date, hour).
func MergeHourly(rows []models.HourlyRow) ([]models.HourlyRow, []int64) {
	groups := make(map[models.HourKey][]models.HourlyRow)
	for _, r := range rows {
		k := models.HourKey{Date: r.Date, Hour: r.Hour}
		groups[k] = append(groups[k], r)
	}

	var survivors []models.HourlyRow
	var deleted []int64
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		keep := group[0]
		for _, r := range group[1:] {
			keep.Totals = keep.Totals.Add(r.Totals)
			deleted = append(deleted, r.ID)
		}
		survivors = append(survivors, keep)
	}

	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].Date != survivors[j].Date {
			return survivors[i].Date < survivors[j].Date
		}
		return survivors[i].Hour < survivors[j].Hour
	})
	sort.Slice(deleted, func(i, j int) bool { return deleted[i] < deleted[j] })
	return survivors, deleted
}
