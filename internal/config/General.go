package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// PoolID is the ID of the vault pool this YVM instance will manage.
	PoolID uint64

	// AdminIdentity is the identity that initializes and administers the pool.
	AdminIdentity string

	// TreasuryIdentity is the identity granted the treasury role at bootstrap.
	TreasuryIdentity string

	// RebalanceThreshold is the minimum score improvement required before a
	// rebalance is executed.
	RebalanceThreshold uint64

	// LoopIntervalSeconds is the keeper cycle interval.
	LoopIntervalSeconds uint64
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	PoolID, err = getEnvAsUint64("YVM_POOL_ID")
	if err != nil {
		return err
	}

	AdminIdentity, err = getEnv("YVM_ADMIN_IDENTITY")
	if err != nil {
		return err
	}

	TreasuryIdentity, err = getEnv("YVM_TREASURY_IDENTITY")
	if err != nil {
		return err
	}

	RebalanceThreshold, err = getEnvAsUint64("YVM_REBALANCE_THRESHOLD")
	if err != nil {
		return err
	}
	if RebalanceThreshold > 100 {
		return errors.New("YVM_REBALANCE_THRESHOLD must be at most 100")
	}

	LoopIntervalSeconds, err = getEnvAsUint64("YVM_LOOP_INTERVAL_SECONDS")
	if err != nil {
		return err
	}
	if LoopIntervalSeconds == 0 {
		return errors.New("YVM_LOOP_INTERVAL_SECONDS must be positive")
	}

	log.Debug().
		Uint64("PoolID", PoolID).
		Str("AdminIdentity", AdminIdentity).
		Uint64("RebalanceThreshold", RebalanceThreshold).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}
