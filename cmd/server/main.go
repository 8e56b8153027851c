package main

import (
	"log"

	"github.com/joho/godotenv"

	"stocktake-system/config"
	"stocktake-system/internal/database"
	"stocktake-system/internal/server"
	"stocktake-system/internal/services/catalog"
	"stocktake-system/internal/services/counting"
	"stocktake-system/internal/services/usage"
)

func main() {
	godotenv.Load()
	cfg := config.LoadConfig()

	redisClient := config.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}

	if err := database.MigrateStocktakeDB(db); err != nil {
		log.Fatalf("Failed to migrate stocktake database: %v", err)
	}

	products := catalog.NewProductService(db, redisClient)
	recipes := catalog.NewRecipeService(db)
	sales := catalog.NewSalesService(db)
	ledger := catalog.NewLedgerService(db)

	counts := counting.NewManager(counting.NewGormStore(db), products, redisClient)
	analyzer := usage.NewAnalyzer(products, recipes, sales, ledger)

	r := server.NewRouter(server.NewHandler(products, counts, analyzer))

	addr := ":" + cfg.Server.Port
	log.Printf("stocktake service listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
