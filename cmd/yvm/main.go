package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/openyield/yvm/internal/config"
	"github.com/openyield/yvm/internal/keeper"
	"github.com/openyield/yvm/internal/ledger"
	"github.com/openyield/yvm/internal/logger"
	"github.com/openyield/yvm/internal/rbac"
	"github.com/openyield/yvm/internal/sim"
	"github.com/openyield/yvm/internal/state"
	"github.com/openyield/yvm/internal/strategy"
	"github.com/openyield/yvm/internal/types"
	"github.com/openyield/yvm/internal/web"
)

// main is the entry point for the YVM system.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("YVM Core Logic Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Bootstrap Pool State ---
	pool := types.PoolID(config.PoolID)
	admin := types.Identity(config.AdminIdentity)
	treasury := types.Identity(config.TreasuryIdentity)
	now := time.Now().Unix()

	permissions := rbac.NewRegistry()
	if err := permissions.InitializeAuthority(pool, admin, now); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize role authority")
	}
	if err := permissions.AssignRole(pool, admin, admin, types.RoleStrategyManager, now); err != nil {
		log.Fatal().Err(err).Msg("Failed to assign strategy manager role")
	}
	if err := permissions.AssignRole(pool, admin, treasury, types.RoleTreasury, now); err != nil {
		log.Fatal().Err(err).Msg("Failed to assign treasury role")
	}
	auditBootstrapRoles(pool, admin, treasury)

	bank := sim.NewBank(map[types.Identity]uint64{
		admin: 1_000_000,
	})

	vaultLedger := ledger.NewLedger(bank, permissions)
	if _, err := vaultLedger.Initialize(pool, admin); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize vault")
	}

	strategyRegistry := strategy.NewRegistry(permissions)
	if err := strategyRegistry.Initialize(pool, uint16(config.RebalanceThreshold), now); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize strategy state")
	}

	// --- 3. Register Simulated Yield Venues ---
	amm := sim.NewMockAMM("orca_amm", 10_000_000, 500, 40, 70)
	lending := sim.NewMockLending("solend_lending", 1050, 90)
	protocols := []sim.Protocol{amm, lending}

	for _, proto := range protocols {
		index, err := strategyRegistry.RegisterOpportunity(pool, admin, proto.ID(), proto.Metrics(), now)
		if err != nil {
			log.Fatal().Err(err).Str("protocol", proto.ID()).Msg("Failed to register opportunity")
		}
		log.Info().Str("protocol", proto.ID()).Uint8("index", index).Msg("Opportunity registered")
	}

	// --- 4. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, pool, vaultLedger, strategyRegistry)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting YVM web dashboard")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Start Keeper Main Loop ---
	keeperCfg := keeper.Config{
		Pool:      pool,
		Operator:  admin,
		Ledger:    vaultLedger,
		Strategy:  strategyRegistry,
		Bank:      bank,
		Protocols: protocols,
	}

	keeperInstance, err := keeper.NewKeeper(keeperCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper instance")
	}

	interval := time.Duration(config.LoopIntervalSeconds) * time.Second
	log.Info().Str("interval", interval.String()).Msg("Starting keeper main loop")

	ctx := context.Background()
	keeperInstance.RunLoop(ctx, interval)
}

// auditBootstrapRoles records the bootstrap role grants. Audit failures are
// logged but do not abort startup.
func auditBootstrapRoles(pool types.PoolID, admin, treasury types.Identity) {
	entries := []types.RoleAuditEntry{
		{Pool: pool, Actor: admin, Subject: admin, Role: types.RoleAdmin, Action: "assign", Timestamp: time.Now().UTC()},
		{Pool: pool, Actor: admin, Subject: admin, Role: types.RoleStrategyManager, Action: "assign", Timestamp: time.Now().UTC()},
		{Pool: pool, Actor: admin, Subject: treasury, Role: types.RoleTreasury, Action: "assign", Timestamp: time.Now().UTC()},
	}
	for _, entry := range entries {
		if _, err := state.SaveRoleAuditEntry(entry); err != nil {
			log.Error().Err(err).Msg("Failed to record bootstrap role grant")
		}
	}
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
