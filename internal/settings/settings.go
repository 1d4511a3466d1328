// Package settings reads and validates the flat key/value settings table.
package settings

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/store"
)

type Settings struct {
	store store.SettingsStore
}

func New(s store.SettingsStore) *Settings {
	return &Settings{store: s}
}

func (s *Settings) Get(ctx context.Context, key string) (string, error) {
	value, ok, err := s.store.GetSetting(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", store.ErrSettingNotFound
	}
	return value, nil
}

// Set stores value under key. Known keys are validated, unknown keys stored as given.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return store.MissingFields("key")
	}
	if err := Validate(key, value); err != nil {
		return err
	}
	return s.store.SetSetting(ctx, key, strings.TrimSpace(value))
}

func Validate(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case models.SettingServiceDuration:
		minutes, err := strconv.Atoi(value)
		if err != nil || minutes <= 0 || minutes > 24*60 {
			return store.Invalid(key + " must be a positive number of minutes")
		}
	case models.SettingAlarmActive:
		if _, err := strconv.ParseBool(value); err != nil {
			return store.Invalid(key + " must be true or false")
		}
	case models.SettingMaxWaitMultiplier:
		m, err := strconv.ParseFloat(value, 64)
		if err != nil || m < 0 {
			return store.Invalid(key + " must be a non-negative number")
		}
	case models.SettingLunchWindow:
		if value == "" {
			return nil
		}
		if _, _, err := parseWindow(value); err != nil {
			return store.Invalid(key + " must look like HH:MM-HH:MM")
		}
	}
	return nil
}

func (s *Settings) raw(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := s.store.GetSetting(ctx, key)
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(value), ok && strings.TrimSpace(value) != "", nil
}

// ServiceDuration is the slot length. Missing or malformed values give the default.
func (s *Settings) ServiceDuration(ctx context.Context) (time.Duration, error) {
	value, ok, err := s.raw(ctx, models.SettingServiceDuration)
	if err != nil {
		return 0, err
	}
	minutes := models.DefaultServiceDuration
	if ok {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			log.Printf("settings key=%s value=%q invalid, using default", models.SettingServiceDuration, value)
		} else {
			minutes = parsed
		}
	}
	return time.Duration(minutes) * time.Minute, nil
}

func (s *Settings) AlarmActive(ctx context.Context) (bool, error) {
	value, ok, err := s.raw(ctx, models.SettingAlarmActive)
	if err != nil || !ok {
		return false, err
	}
	active, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("settings key=%s value=%q invalid, treating as false", models.SettingAlarmActive, value)
		return false, nil
	}
	return active, nil
}

func (s *Settings) MaxWaitMultiplier(ctx context.Context) (float64, error) {
	value, ok, err := s.raw(ctx, models.SettingMaxWaitMultiplier)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	m, err := strconv.ParseFloat(value, 64)
	if err != nil || m < 0 {
		log.Printf("settings key=%s value=%q invalid, using 1", models.SettingMaxWaitMultiplier, value)
		return 1, nil
	}
	return m, nil
}

// ExpiryGrace is how long past its appointment a waiting ticket survives before auto-skip.
func (s *Settings) ExpiryGrace(ctx context.Context) (time.Duration, error) {
	duration, err := s.ServiceDuration(ctx)
	if err != nil {
		return 0, err
	}
	multiplier, err := s.MaxWaitMultiplier(ctx)
	if err != nil {
		return 0, err
	}
	return time.Duration(float64(duration)*multiplier) + 5*time.Minute, nil
}

// LunchWindow returns the break as minutes after midnight. ok is false when unset.
func (s *Settings) LunchWindow(ctx context.Context) (start, end int, ok bool, err error) {
	value, set, err := s.raw(ctx, models.SettingLunchWindow)
	if err != nil || !set || strings.TrimSpace(value) == "" {
		return 0, 0, false, err
	}
	start, end, err = parseWindow(value)
	if err != nil {
		log.Printf("settings key=%s value=%q invalid, ignoring", models.SettingLunchWindow, value)
		return 0, 0, false, nil
	}
	return start, end, true, nil
}

func parseWindow(value string) (int, int, error) {
	parts := strings.Split(value, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid window %q", value)
	}
	return models.DayHours{Start: strings.TrimSpace(parts[0]), End: strings.TrimSpace(parts[1])}.Bounds()
}

// LoadSeed reads a YAML mapping of setting keys to values.
func LoadSeed(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return values, nil
}

// ApplySeed writes every seed value whose key is not stored yet and returns how many were written.
func (s *Settings) ApplySeed(ctx context.Context, values map[string]string) (int, error) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	written := 0
	for _, key := range keys {
		_, ok, err := s.store.GetSetting(ctx, key)
		if err != nil {
			return written, err
		}
		if ok {
			continue
		}
		if err := s.Set(ctx, key, values[key]); err != nil {
			return written, fmt.Errorf("seed %s: %w", key, err)
		}
		written++
	}
	return written, nil
}
