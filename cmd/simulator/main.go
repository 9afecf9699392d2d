// Command simulator seeds a demo plant and drives breakdowns through the
// maintenance API the way the shop floor would.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/plant-maintenance/internal/auth"
	"github.com/ukydev/plant-maintenance/internal/config"
	"github.com/ukydev/plant-maintenance/internal/db"
	"github.com/ukydev/plant-maintenance/internal/models"
)

type settings struct {
	apiURL        string
	lines         int
	machines      int
	tick          time.Duration
	breakdownRate float64
	password      string
}

func loadSettings() settings {
	s := settings{
		apiURL:        os.Getenv("API_BASE_URL"),
		lines:         envInt("SIM_LINES", 2),
		machines:      envInt("SIM_MACHINES_PER_LINE", 4),
		tick:          time.Duration(envInt("SIM_TICK_SECONDS", 5)) * time.Second,
		breakdownRate: envFloat("SIM_BREAKDOWN_RATE", 0.05),
		password:      os.Getenv("SIM_PASSWORD"),
	}
	if s.apiURL == "" {
		s.apiURL = "http://localhost:8080/api"
	}
	if s.password == "" {
		s.password = "Simulat0r!"
	}
	if s.tick < time.Second {
		s.tick = time.Second
	}
	return s
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			return f
		}
	}
	return fallback
}

func simAccounts(password string) []account {
	return []account{
		{Name: "Sim Production", Email: "sim.production@plant.local", Password: password, Department: models.DepartmentProductionSupervisor},
		{Name: "Sim Supervisor", Email: "sim.supervisor@plant.local", Password: password, Department: models.DepartmentMaintenanceSupervisor},
		{Name: "Sim Technician", Email: "sim.technician@plant.local", Password: password, Department: models.DepartmentMaintenanceTechnician},
	}
}

func main() {
	s := loadSettings()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	store := db.NewStore(client, cfg.Mongo.Database, cfg.Mongo.Transactions)
	hasher := auth.NewService(cfg.JWT, nil)
	seed := newSeeder(store, hasher.HashPassword)

	accounts := simAccounts(s.password)
	for _, a := range accounts {
		if _, err := seed.ensureAccount(ctx, a); err != nil {
			log.WithError(err).WithField("email", a.Email).Fatal("Failed to seed account")
		}
	}
	machines, err := seed.seedPlant(ctx, strconv.FormatInt(time.Now().Unix(), 36), s.lines, s.machines)
	if err != nil {
		log.WithError(err).Fatal("Failed to seed plant")
	}

	api := newAPIClient(s.apiURL, 10*time.Second)
	sessions := make([]*session, len(accounts))
	for i, a := range accounts {
		if sessions[i], err = api.login(ctx, a.Email, a.Password); err != nil {
			log.WithError(err).Fatal("Login failed. Ensure the API is reachable at API_BASE_URL")
		}
	}
	production, supervisor, technician := sessions[0], sessions[1], sessions[2]

	floor := newShopFloor(machines, production, supervisor, technician, technician.employee.ID.Hex(),
		s.breakdownRate, rand.New(rand.NewSource(time.Now().UnixNano())))

	log.WithFields(log.Fields{
		"api_url":        s.apiURL,
		"machines":       len(machines),
		"interval":       s.tick,
		"breakdown_rate": s.breakdownRate,
	}).Info("Starting shop-floor simulation")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Simulation stopped")
			return
		case <-ticker.C:
			floor.tick(ctx)
		}
	}
}
