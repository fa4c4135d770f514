package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fleet-status-backend/internal/aggregate"
	"fleet-status-backend/internal/model"
	"fleet-status-backend/internal/opstatus"
)

// DefaultFleet receives machines the upstream reports without a fleet.
const DefaultFleet = "Sem frota"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for all database operations.
type Store interface {
	UpsertFleetsAndMachines(ctx context.Context, items []ApiItem) error
	UpdateStatus(ctx context.Context, now time.Time, items []ApiItem) ([]Transition, error)
	PruneIntervals(ctx context.Context, before time.Time) (int64, error)
	ListFleets(ctx context.Context) ([]FleetSummary, error)
	ListMachines(ctx context.Context, fleetID int64) ([]MachineStatus, error)
	MachinesAt(ctx context.Context, fleetID int64, at time.Time) ([]MachineStatus, error)
	GetMachine(ctx context.Context, machineID string) (*model.Machine, error)
	ListIntervals(ctx context.Context, machineID string, from *time.Time) ([]aggregate.Interval, error)
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpdateStatus processes status changes and updates the database transactionally.
// It returns the machines that entered a downtime status.
func (s *gormStore) UpdateStatus(ctx context.Context, now time.Time, allItems []ApiItem) ([]Transition, error) {
	currentOpenRecords, err := s.fetchAllOpenStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open status records: %w", err)
	}

	var transitions []Transition
	seen := make(map[string]struct{}, len(allItems))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range allItems {
			if _, dup := seen[item.ID]; dup {
				log.Printf("Skipping duplicate feed entry for machine %s", item.ID)
				continue
			}
			seen[item.ID] = struct{}{}
			oldRecord, exists := currentOpenRecords[item.ID]
			delete(currentOpenRecords, item.ID)
			if item.ID == "" || !item.StatusParsed.Valid() {
				// Unknown status: leave whatever is open untouched.
				continue
			}
			if !exists {
				// First sighting. No transition: we do not know what it came from.
				start := now
				if t := item.ChangedAtParsed; t != nil && !t.After(now) {
					start = *t
				}
				newRecord := prepareOpen(item, start, now)
				if err := tx.Create(&newRecord).Error; err != nil {
					return fmt.Errorf("failed to create open status record for machine %s: %w", item.ID, err)
				}
				continue
			}

			if sameInterval(oldRecord, item) {
				if oldRecord.LossValue != item.LossValue || oldRecord.RevenueValue != item.RevenueValue {
					if err := tx.Model(&model.StatusOpen{MachineID: item.ID}).Updates(map[string]any{
						"loss_value":    item.LossValue,
						"revenue_value": item.RevenueValue,
					}).Error; err != nil {
						return fmt.Errorf("failed to update values for machine %s: %w", item.ID, err)
					}
				}
				continue
			}

			// Status changed: close the old interval where the new one begins.
			boundary := changeTime(item, oldRecord.StartedAt, now)
			if err := archiveRecord(tx, oldRecord, boundary); err != nil {
				return err
			}
			updatedRecord := prepareOpen(item, boundary, now)
			if err := tx.Save(&updatedRecord).Error; err != nil {
				return fmt.Errorf("failed to update open status record for machine %s: %w", item.ID, err)
			}
			if item.StatusParsed.IsDowntime() && item.StatusParsed != oldRecord.Status {
				transitions = append(transitions, Transition{
					MachineID:   item.ID,
					DisplayName: item.Name,
					From:        oldRecord.Status,
					To:          item.StatusParsed,
					At:          boundary,
				})
			}
		}

		// Handle machines that were in our database but are no longer in the API feed.
		for _, remainingRecord := range currentOpenRecords {
			if err := archiveRecord(tx, remainingRecord, now); err != nil {
				return err
			}
			if err := tx.Delete(&model.StatusOpen{}, "machine_id = ?", remainingRecord.MachineID).Error; err != nil {
				return fmt.Errorf("failed to delete open status record for machine %s: %w", remainingRecord.MachineID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transitions, nil
}

// sameInterval reports whether item still describes the open interval.
func sameInterval(open model.StatusOpen, item ApiItem) bool {
	return open.Status == item.StatusParsed &&
		open.Factor == item.Factor &&
		open.Group == item.Group &&
		open.Subgroup == item.Subgroup
}

// changeTime is the upstream change time when it falls within (after, now], else now.
func changeTime(item ApiItem, after, now time.Time) time.Time {
	if t := item.ChangedAtParsed; t != nil && t.After(after) && !t.After(now) {
		return *t
	}
	return now
}

// archiveRecord moves a finished open record into the interval table.
func archiveRecord(tx *gorm.DB, recordToArchive model.StatusOpen, endedAt time.Time) error {
	if endedAt.Before(recordToArchive.StartedAt) {
		endedAt = recordToArchive.StartedAt
	}
	interval := model.StatusInterval{
		MachineID:    recordToArchive.MachineID,
		Status:       recordToArchive.Status,
		StartedAt:    recordToArchive.StartedAt,
		EndedAt:      endedAt,
		Factor:       recordToArchive.Factor,
		Group:        recordToArchive.Group,
		Subgroup:     recordToArchive.Subgroup,
		LossValue:    recordToArchive.LossValue,
		RevenueValue: recordToArchive.RevenueValue,
	}
	if err := tx.Create(&interval).Error; err != nil {
		return fmt.Errorf("failed to archive status record for machine %s: %w", recordToArchive.MachineID, err)
	}
	return nil
}

func prepareOpen(item ApiItem, startedAt, now time.Time) model.StatusOpen {
	return model.StatusOpen{
		MachineID:    item.ID,
		Status:       item.StatusParsed,
		StartedAt:    startedAt,
		ObservedAt:   now,
		Factor:       item.Factor,
		Group:        item.Group,
		Subgroup:     item.Subgroup,
		LossValue:    item.LossValue,
		RevenueValue: item.RevenueValue,
	}
}

// UpsertFleetsAndMachines handles the database updates for fleet and machine metadata.
func (s *gormStore) UpsertFleetsAndMachines(ctx context.Context, items []ApiItem) error {
	existingMachines, err := s.fetchAllMachines(ctx)
	if err != nil {
		log.Printf("Warning: could not pre-fetch machines: %v", err)
		existingMachines = make(map[string]model.Machine)
	}

	// Phase 1: Process and save fleets
	fleetMap, err := s.processAndSaveFleets(ctx, items)
	if err != nil {
		return fmt.Errorf("failed to process fleets: %w", err)
	}

	// Phase 2: Build machine slice for upserting
	var machinesToUpsert []model.Machine
	for _, item := range items {
		if item.ID == "" {
			log.Printf("Skipping item %q without an id", item.Name)
			continue
		}
		fleet, ok := fleetMap[fleetName(item)]
		if !ok {
			log.Printf("Error: could not find fleet %q in map after upserting. Skipping machine %s.", fleetName(item), item.ID)
			continue
		}
		machine, needsUpsert := prepareMachine(item, existingMachines, fleet.ID)
		if needsUpsert {
			machinesToUpsert = append(machinesToUpsert, machine)
		}
	}

	if len(machinesToUpsert) > 0 {
		log.Printf("Batch upserting %d machines...", len(machinesToUpsert))
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return batchUpsertMachines(tx, machinesToUpsert)
		})
	}
	return nil
}

func fleetName(item ApiItem) string {
	if item.Fleet == "" {
		return DefaultFleet
	}
	return item.Fleet
}

func (s *gormStore) fetchAllOpenStatuses(ctx context.Context) (map[string]model.StatusOpen, error) {
	var openRecords []model.StatusOpen
	if err := s.db.WithContext(ctx).Find(&openRecords).Error; err != nil {
		return nil, err
	}
	recordMap := make(map[string]model.StatusOpen, len(openRecords))
	for _, r := range openRecords {
		recordMap[r.MachineID] = r
	}
	return recordMap, nil
}

func (s *gormStore) fetchAllMachines(ctx context.Context) (map[string]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Find(&machines).Error; err != nil {
		return nil, err
	}
	machineMap := make(map[string]model.Machine, len(machines))
	for _, m := range machines {
		machineMap[m.ID] = m
	}
	return machineMap, nil
}

func (s *gormStore) processAndSaveFleets(ctx context.Context, items []ApiItem) (map[string]model.Fleet, error) {
	fleetsToUpsert := make(map[string]model.Fleet)
	for _, item := range items {
		name := fleetName(item)
		if _, exists := fleetsToUpsert[name]; !exists {
			fleetsToUpsert[name] = model.Fleet{Name: name}
		}
	}

	if len(fleetsToUpsert) == 0 {
		return make(map[string]model.Fleet), nil
	}

	fleetList := make([]model.Fleet, 0, len(fleetsToUpsert))
	for _, f := range fleetsToUpsert {
		fleetList = append(fleetList, f)
	}
	sort.Slice(fleetList, func(i, j int) bool { return fleetList[i].Name < fleetList[j].Name })

	log.Printf("Batch upserting %d fleets...", len(fleetList))
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&fleetList).Error; err != nil {
		return nil, fmt.Errorf("batch upsert fleets failed: %w", err)
	}

	var allFleets []model.Fleet
	if err := s.db.WithContext(ctx).Find(&allFleets).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve fleets after upsert: %w", err)
	}

	fleetMap := make(map[string]model.Fleet, len(allFleets))
	for _, f := range allFleets {
		fleetMap[f.Name] = f
	}
	return fleetMap, nil
}

func prepareMachine(item ApiItem, existingMachines map[string]model.Machine, fleetID int64) (model.Machine, bool) {
	newMachine := model.Machine{
		ID:          item.ID,
		FleetID:     fleetID,
		DisplayName: item.Name,
		Code:        item.Code,
	}
	if newMachine.DisplayName == "" {
		newMachine.DisplayName = item.ID
	}

	if oldMachine, exists := existingMachines[newMachine.ID]; exists {
		if oldMachine.FleetID == newMachine.FleetID &&
			oldMachine.DisplayName == newMachine.DisplayName &&
			oldMachine.Code == newMachine.Code {
			return newMachine, false
		}
	}
	return newMachine, true
}

func batchUpsertMachines(tx *gorm.DB, machines []model.Machine) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"fleet_id", "display_name", "code", "updated_at"}),
	}).Create(&machines).Error
}

// PruneIntervals deletes closed intervals that ended before the given time.
func (s *gormStore) PruneIntervals(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("ended_at < ?", before).Delete(&model.StatusInterval{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune status intervals: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListFleets returns every fleet with its machine counts.
func (s *gormStore) ListFleets(ctx context.Context) ([]FleetSummary, error) {
	db := s.db.WithContext(ctx)

	var fleets []model.Fleet
	if err := db.Order("name").Find(&fleets).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve fleets: %w", err)
	}

	type aggRow struct {
		FleetID       int64
		TotalMachines int64
		InDowntime    int64
	}
	var aggs []aggRow
	if err := db.
		Model(&model.Machine{}).
		Select("machines.fleet_id AS fleet_id, COUNT(*) AS total_machines, "+
			"COALESCE(SUM(CASE WHEN status_opens.status IN ? THEN 1 ELSE 0 END), 0) AS in_downtime",
			[]string{string(opstatus.Downtime), string(opstatus.DowntimePartial)}).
		Joins("LEFT JOIN status_opens ON status_opens.machine_id = machines.id").
		Group("machines.fleet_id").
		Scan(&aggs).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate machines: %w", err)
	}

	aggMap := make(map[int64]aggRow, len(aggs))
	for _, a := range aggs {
		aggMap[a.FleetID] = a
	}

	out := make([]FleetSummary, 0, len(fleets))
	for _, f := range fleets {
		a := aggMap[f.ID]
		out = append(out, FleetSummary{
			ID:            f.ID,
			Name:          f.Name,
			TotalMachines: a.TotalMachines,
			InDowntime:    a.InDowntime,
		})
	}
	return out, nil
}

// ListMachines returns the machines of a fleet with their current status.
func (s *gormStore) ListMachines(ctx context.Context, fleetID int64) ([]MachineStatus, error) {
	db := s.db.WithContext(ctx)

	var machines []model.Machine
	if err := db.Where("fleet_id = ?", fleetID).Order("display_name").Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve machines: %w", err)
	}
	if len(machines) == 0 {
		return []MachineStatus{}, nil
	}

	machineIDs := make([]string, len(machines))
	for i, m := range machines {
		machineIDs[i] = m.ID
	}
	var openStatuses []model.StatusOpen
	if err := db.Where("machine_id IN ?", machineIDs).Find(&openStatuses).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve open statuses: %w", err)
	}
	statusMap := make(map[string]model.StatusOpen, len(openStatuses))
	for _, st := range openStatuses {
		statusMap[st.MachineID] = st
	}

	out := make([]MachineStatus, 0, len(machines))
	for _, machine := range machines {
		ms := MachineStatus{Machine: machine}
		if open, ok := statusMap[machine.ID]; ok {
			since, observed := open.StartedAt, open.ObservedAt
			ms.Status = open.Status
			ms.Label = open.Status.Label()
			ms.Factor = open.Factor
			ms.Group = open.Group
			ms.Subgroup = open.Subgroup
			ms.Since = &since
			ms.ObservedAt = &observed
		}
		out = append(out, ms)
	}
	return out, nil
}

// MachinesAt returns the machines of a fleet with the status they were in at the given instant.
// Machines with no status covering that instant are omitted.
func (s *gormStore) MachinesAt(ctx context.Context, fleetID int64, at time.Time) ([]MachineStatus, error) {
	db := s.db.WithContext(ctx)

	var machines []model.Machine
	if err := db.Where("fleet_id = ?", fleetID).Order("display_name").Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve machines: %w", err)
	}

	out := make([]MachineStatus, 0, len(machines))
	for _, machine := range machines {
		var closed []model.StatusInterval
		if err := db.Where("machine_id = ? AND started_at <= ? AND ended_at > ?", machine.ID, at, at).
			Order("started_at DESC").
			Limit(1).
			Find(&closed).Error; err != nil {
			return nil, fmt.Errorf("historical lookup for machine %s: %w", machine.ID, err)
		}
		if len(closed) == 1 {
			iv := closed[0]
			since := iv.StartedAt
			out = append(out, MachineStatus{
				Machine: machine, Status: iv.Status, Label: iv.Status.Label(),
				Factor: iv.Factor, Group: iv.Group, Subgroup: iv.Subgroup, Since: &since,
			})
			continue
		}

		var open []model.StatusOpen
		if err := db.Where("machine_id = ? AND started_at <= ?", machine.ID, at).
			Limit(1).
			Find(&open).Error; err != nil {
			return nil, fmt.Errorf("open status lookup for machine %s: %w", machine.ID, err)
		}
		if len(open) == 1 {
			st := open[0]
			since, observed := st.StartedAt, st.ObservedAt
			out = append(out, MachineStatus{
				Machine: machine, Status: st.Status, Label: st.Status.Label(),
				Factor: st.Factor, Group: st.Group, Subgroup: st.Subgroup, Since: &since, ObservedAt: &observed,
			})
		}
	}
	return out, nil
}

// GetMachine returns a machine by its upstream id, or ErrNotFound.
func (s *gormStore) GetMachine(ctx context.Context, machineID string) (*model.Machine, error) {
	var machine model.Machine
	if err := s.db.WithContext(ctx).First(&machine, "id = ?", machineID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("machine %s: %w", machineID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve machine %s: %w", machineID, err)
	}
	return &machine, nil
}

// ListIntervals returns the closed intervals of a machine that end at or after from,
// followed by the open record as an ongoing interval, ordered by start.
func (s *gormStore) ListIntervals(ctx context.Context, machineID string, from *time.Time) ([]aggregate.Interval, error) {
	db := s.db.WithContext(ctx)

	q := db.Where("machine_id = ?", machineID)
	if from != nil {
		q = q.Where("ended_at >= ?", *from)
	}
	var closed []model.StatusInterval
	if err := q.Order("started_at").Find(&closed).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve intervals for machine %s: %w", machineID, err)
	}

	var open []model.StatusOpen
	if err := db.Where("machine_id = ?", machineID).Limit(1).Find(&open).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve open status for machine %s: %w", machineID, err)
	}

	out := make([]aggregate.Interval, 0, len(closed)+len(open))
	for _, iv := range closed {
		start, end := iv.StartedAt.UTC(), iv.EndedAt.UTC()
		out = append(out, aggregate.Interval{
			MachineID:    iv.MachineID,
			Status:       iv.Status,
			StartedAt:    &start,
			EndedAt:      &end,
			Factor:       iv.Factor,
			Group:        iv.Group,
			Subgroup:     iv.Subgroup,
			LossValue:    iv.LossValue,
			RevenueValue: iv.RevenueValue,
		})
	}
	for _, st := range open {
		start := st.StartedAt.UTC()
		out = append(out, aggregate.Interval{
			MachineID:    st.MachineID,
			Status:       st.Status,
			StartedAt:    &start,
			Factor:       st.Factor,
			Group:        st.Group,
			Subgroup:     st.Subgroup,
			LossValue:    st.LossValue,
			RevenueValue: st.RevenueValue,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(*out[j].StartedAt) })
	return out, nil
}
