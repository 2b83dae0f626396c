package main

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/zar/internal/models"
)

var hhmm = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// seedFile is the layout of a delivery seed document:
//
//	zones:
//	  - name: City centre
//	    fee: "10.00"
//	    estimated_time: 30-45 min
//	slots:
//	  - label: Morning
//	    start: "09:00"
//	    end: "12:00"
type seedFile struct {
	Zones []seedZone `yaml:"zones"`
	Slots []seedSlot `yaml:"slots"`
}

type seedZone struct {
	Name          string `yaml:"name"`
	Fee           string `yaml:"fee"`
	EstimatedTime string `yaml:"estimated_time"`
	Inactive      bool   `yaml:"inactive"`
}

type seedSlot struct {
	Label    string `yaml:"label"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Inactive bool   `yaml:"inactive"`
}

func parseSeed(data []byte) (parsedSeed, error) {
	var doc seedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return parsedSeed{}, fmt.Errorf("parse seed: %w", err)
	}

	zones := make([]models.DeliveryZone, 0, len(doc.Zones))
	for i, z := range doc.Zones {
		name := strings.TrimSpace(z.Name)
		if name == "" {
			return parsedSeed{}, fmt.Errorf("zones[%d]: name is required", i)
		}
		fee, err := decimal.NewFromString(strings.TrimSpace(z.Fee))
		if err != nil {
			return parsedSeed{}, fmt.Errorf("zones[%d] %q: invalid fee %q", i, name, z.Fee)
		}
		if fee.IsNegative() {
			return parsedSeed{}, fmt.Errorf("zones[%d] %q: fee must not be negative", i, name)
		}
		zones = append(zones, models.DeliveryZone{
			Name:          name,
			Fee:           fee,
			EstimatedTime: strings.TrimSpace(z.EstimatedTime),
			IsActive:      !z.Inactive,
		})
	}

	slots := make([]models.DeliverySlot, 0, len(doc.Slots))
	for i, s := range doc.Slots {
		label := strings.TrimSpace(s.Label)
		if label == "" {
			return parsedSeed{}, fmt.Errorf("slots[%d]: label is required", i)
		}
		if !hhmm.MatchString(s.Start) || !hhmm.MatchString(s.End) {
			return parsedSeed{}, fmt.Errorf("slots[%d] %q: start and end must be HH:MM", i, label)
		}
		if s.Start >= s.End {
			return parsedSeed{}, fmt.Errorf("slots[%d] %q: start must be before end", i, label)
		}
		slots = append(slots, models.DeliverySlot{
			Label:     label,
			StartTime: s.Start,
			EndTime:   s.End,
			SortOrder: i + 1,
			IsActive:  !s.Inactive,
		})
	}

	return parsedSeed{zones: zones, slots: slots}, nil
}

type parsedSeed struct {
	zones []models.DeliveryZone
	slots []models.DeliverySlot
}

// applySeed upserts zones by name and slots by label in one transaction.
func applySeed(db *gorm.DB, seed parsedSeed) (int, int, error) {
	err := db.Transaction(func(tx *gorm.DB) error {
		if len(seed.zones) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"fee", "estimated_time", "is_active", "updated_at"}),
			}).Create(&seed.zones).Error; err != nil {
				return fmt.Errorf("seed zones: %w", err)
			}
		}
		if len(seed.slots) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "label"}},
				DoUpdates: clause.AssignmentColumns([]string{"start_time", "end_time", "sort_order", "is_active", "updated_at"}),
			}).Create(&seed.slots).Error; err != nil {
				return fmt.Errorf("seed slots: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return len(seed.zones), len(seed.slots), nil
}
