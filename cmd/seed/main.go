package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/backend/internal/api/middleware"
	"github.com/pulseboard/pulseboard/backend/internal/api/routes"
	"github.com/pulseboard/pulseboard/backend/internal/config"
	"github.com/pulseboard/pulseboard/backend/internal/database"
	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/services"
)

type seedComponent struct {
	name  string
	check models.CheckConfig
}

type seedApp struct {
	name       string
	check      models.CheckConfig
	components []seedComponent
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
	fmt.Println("✓ Database migrated successfully")

	ctx := context.Background()
	svc := routes.NewServices(db, cfg, routes.Options{})

	var platform models.Platform
	err = db.Where("name = ?", "Demo Platform").First(&platform).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		platform = models.Platform{Name: "Demo Platform", OrganizationID: "demo"}
		if err := svc.Entities.CreatePlatform(ctx, &platform); err != nil {
			log.Fatal("Failed to seed platform:", err)
		}
		fmt.Printf("✓ Created platform: %s\n", platform.Name)
	case err != nil:
		log.Fatal("Failed to look up platform:", err)
	default:
		fmt.Printf("  Platform already exists: %s\n", platform.Name)
	}

	apps := []seedApp{
		{
			name: "Public Website",
			check: models.CheckConfig{
				CheckEnabled: true, CheckType: models.CheckTypeHTTPGet, CheckURL: "https://example.com",
				CheckIntervalSeconds: 60, CheckFailureThreshold: 3,
			},
			components: []seedComponent{
				{name: "CDN"},
				{name: "Landing Page", check: models.CheckConfig{
					CheckEnabled: true, CheckType: models.CheckTypeHTTPGet, CheckURL: "https://example.com/",
					CheckExpectedStatus: 200, CheckIntervalSeconds: 120,
				}},
			},
		},
		{
			name: "Payments API",
			check: models.CheckConfig{
				CheckEnabled: true, CheckType: models.CheckTypeHealthEndpoint, CheckURL: "http://localhost:8080/api/v1/health",
				CheckIntervalSeconds: 30, CheckFailureThreshold: 2,
			},
			components: []seedComponent{
				{name: "Database", check: models.CheckConfig{
					CheckEnabled: true, CheckType: models.CheckTypeTCPPort, CheckURL: "localhost:5432", CheckIntervalSeconds: 60,
				}},
				{name: "Gateway", check: models.CheckConfig{
					CheckEnabled: true, CheckType: models.CheckTypePing, CheckURL: "127.0.0.1", CheckIntervalSeconds: 60,
				}},
			},
		},
	}

	for _, sa := range apps {
		var app models.App
		err := db.Where("name = ? AND platform_id = ?", sa.name, platform.ID).First(&app).Error
		if err == nil {
			fmt.Printf("  App already exists: %s\n", sa.name)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Failed to look up app %s: %v", sa.name, err)
			continue
		}

		app = models.App{Name: sa.name, PlatformID: &platform.ID, CheckConfig: sa.check}
		if err := svc.Entities.CreateApp(ctx, &app); err != nil {
			log.Printf("Failed to seed app %s: %v", sa.name, err)
			continue
		}
		fmt.Printf("✓ Created app: %s\n", app.Name)

		for _, sc := range sa.components {
			comp := models.Component{AppID: app.ID, Name: sc.name, CheckConfig: sc.check}
			if !sc.check.CheckEnabled {
				// probes through the app's own check
				comp.CheckEnabled = true
				comp.CheckInheritFromApp = true
			}
			if err := svc.Entities.CreateComponent(ctx, &comp); err != nil {
				log.Printf("Failed to seed component %s: %v", sc.name, err)
				continue
			}
			fmt.Printf("✓ Created component: %s / %s\n", app.Name, comp.Name)
		}
	}

	// A maintenance window tomorrow on the first app
	var first models.App
	if err := db.Where("platform_id = ?", platform.ID).Order("name ASC").First(&first).Error; err == nil {
		var existing int64
		db.Model(&models.Maintenance{}).Where("app_id = ?", first.ID).Count(&existing)
		if existing == 0 {
			start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
			m, err := svc.Maintenance.Schedule(ctx, services.ScheduleMaintenanceInput{
				AppID: first.ID, Title: "Planned database upgrade", StartsAt: start, EndsAt: start.Add(2 * time.Hour), IsPublic: true,
			})
			if err != nil {
				log.Printf("Failed to seed maintenance: %v", err)
			} else {
				fmt.Printf("✓ Scheduled maintenance: %s (%s)\n", m.Title, m.StartsAt.Format(time.RFC3339))
			}
		}
	}

	fmt.Println("\n✓ Database seeding completed successfully!")

	if cfg.JWTSecret == "" {
		fmt.Println("  Set PULSE_JWT_SECRET to print an admin token")
		return
	}
	token, err := middleware.NewTokenVerifier(cfg.JWTSecret).Issue("seed-admin", middleware.RoleAdmin, platform.OrganizationID, 24*time.Hour)
	if err != nil {
		log.Fatal("Failed to issue admin token:", err)
	}
	fmt.Printf("  Admin token (24h): %s\n", token)
}
