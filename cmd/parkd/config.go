package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/parkd/internal/coordinator"
	"github.com/danmuck/parkd/internal/lots"
	"github.com/danmuck/parkd/internal/pricing"
)

// parkd.toml key mapping to coordinator settings.
type fileConfig struct {
	ListenAddr      string    `toml:"listen_addr"`
	DiscoveryAddr   string    `toml:"discovery_addr"`
	AdvertiseHost   string    `toml:"advertise_host"`
	MetricsAddr     string    `toml:"metrics_addr"`
	PollInterval    string    `toml:"poll_interval"`
	ReadTimeout     string    `toml:"read_timeout"`
	WriteTimeout    string    `toml:"write_timeout"`
	MaxPayloadBytes int64     `toml:"max_payload_bytes"`
	Lots            []fileLot `toml:"lots"`
}

// Lot ids follow table order, starting at 1.
type fileLot struct {
	TotalSpaces    int `toml:"total_spaces"`
	OccupiedSpaces int `toml:"occupied_spaces"`
	// integer, float or decimal string
	PricePerHour any `toml:"price_per_hour"`
}

// loader for TOML config with default overlay.
func loadServiceConfig(path string) (coordinator.ServiceConfig, error) {
	cfg := coordinator.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return coordinator.ServiceConfig{}, fmt.Errorf("load parkd config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("discovery_addr") {
		cfg.DiscoveryAddr = strings.TrimSpace(raw.DiscoveryAddr)
	}
	if meta.IsDefined("advertise_host") {
		cfg.AdvertiseHost = strings.TrimSpace(raw.AdvertiseHost)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("poll_interval") {
		if cfg.Session.PollInterval, err = parseDuration("poll_interval", raw.PollInterval); err != nil {
			return coordinator.ServiceConfig{}, err
		}
	}
	if meta.IsDefined("read_timeout") {
		if cfg.Session.ReadTimeout, err = parseDuration("read_timeout", raw.ReadTimeout); err != nil {
			return coordinator.ServiceConfig{}, err
		}
	}
	if meta.IsDefined("write_timeout") {
		if cfg.Session.WriteTimeout, err = parseDuration("write_timeout", raw.WriteTimeout); err != nil {
			return coordinator.ServiceConfig{}, err
		}
	}
	if meta.IsDefined("max_payload_bytes") {
		if raw.MaxPayloadBytes <= 0 || raw.MaxPayloadBytes > 1<<30 {
			return coordinator.ServiceConfig{}, fmt.Errorf(
				"load parkd config: max_payload_bytes %d out of range",
				raw.MaxPayloadBytes,
			)
		}
		cfg.Limits.MaxPayloadBytes = uint32(raw.MaxPayloadBytes)
	}

	if len(raw.Lots) == 0 {
		return coordinator.ServiceConfig{}, fmt.Errorf("load parkd config: at least one [[lots]] table is required")
	}
	cfg.Lots = make([]lots.Lot, 0, len(raw.Lots))
	for i, fl := range raw.Lots {
		price, err := parsePrice(fl.PricePerHour)
		if err != nil {
			return coordinator.ServiceConfig{}, fmt.Errorf("load parkd config: lots[%d] price_per_hour: %w", i, err)
		}
		cfg.Lots = append(cfg.Lots, lots.Lot{
			ID:             i + 1,
			TotalSpaces:    fl.TotalSpaces,
			OccupiedSpaces: fl.OccupiedSpaces,
			PricePerHour:   price,
		})
	}
	if _, err := lots.New(cfg.Lots); err != nil {
		return coordinator.ServiceConfig{}, fmt.Errorf("load parkd config: %w", err)
	}

	cfg.Session = cfg.Session.WithDefaults()
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("load parkd config: %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("load parkd config: %s must not be negative", key)
	}
	return d, nil
}

func parsePrice(v any) (pricing.Money, error) {
	var (
		m   pricing.Money
		err error
	)
	switch p := v.(type) {
	case int64:
		m = pricing.Money(p * 100)
	case float64:
		m, err = pricing.FromFloat(p)
	case string:
		m, err = pricing.ParseMoney(p)
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	if err != nil {
		return 0, err
	}
	if m < 0 {
		return 0, fmt.Errorf("negative price %s", m)
	}
	return m, nil
}
