package main

import (
	"context"
	"log"
	"strconv"

	"dancebattlez/config"
	"dancebattlez/controllers"
	"dancebattlez/db"
	"dancebattlez/middlewares"
	"dancebattlez/routes"
	"dancebattlez/services"
	"dancebattlez/stores"
	"dancebattlez/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional, environment variables win over the YAML file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	cfg, err := config.LoadConfig("./config/config.prod.yml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := db.ConnectMongoDB(cfg.Database.URI); err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	log.Println("Connected to MongoDB")

	if err := db.EnsureIndexes(context.Background()); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	if err := middlewares.InitCasbin(cfg.Database.URI); err != nil {
		log.Fatalf("Failed to initialize RBAC: %v", err)
	}

	utils.PopulateTestUsers()

	matchStore := stores.NewMatchStore()
	voteStore := stores.NewVoteStore()
	userStore := stores.NewUserStore()

	notifier := utils.NewMailer(cfg)
	resolver := services.NewResolver(userStore, cfg.JWT.Secret)
	lifecycle := services.NewLifecycleService(matchStore, voteStore, userStore, notifier, cfg)
	tally := services.NewTallyService(matchStore, voteStore, userStore, notifier)

	controllers.SetupBattleController(lifecycle)
	controllers.SetupAdminController(tally, resolver, userStore, cfg)

	sweeper := services.NewSweeper(matchStore, tally)
	if err := sweeper.Start(cfg); err != nil {
		log.Fatalf("Failed to start sweeper: %v", err)
	}
	defer sweeper.Stop()

	router := setupRouter(cfg, resolver)
	port := strconv.Itoa(cfg.Server.Port)
	log.Printf("Server starting on port %s", port)

	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func setupRouter(cfg *config.Config, resolver *services.Resolver) *gin.Engine {
	router := gin.Default()

	router.SetTrustedProxies([]string{"127.0.0.1", "localhost"})

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	router.OPTIONS("/*path", func(c *gin.Context) { c.Status(204) })

	routes.SetupBattleRoutes(router, resolver)
	routes.SetupVoteRoutes(router, resolver)
	routes.SetupAdminRoutes(router, resolver)

	return router
}
