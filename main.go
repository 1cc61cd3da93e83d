package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"

	"upload-gateway/bot"
	"upload-gateway/configs"
	"upload-gateway/controllers"
	"upload-gateway/services"
	"upload-gateway/storage"
	"upload-gateway/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[WARN] No .env file found, using environment as-is")
	}

	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET is not set in environment variables")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if services.AppUploadService == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	client := configs.ConnectDB(ctx)
	db := client.Database("upload_gateway")

	if err := configs.SetupIndexes(db); err != nil {
		log.Printf("[WARN] Failed to setup indexes: %v (continuing anyway)", err)
	}

	sink := buildChunkSink(db)
	sessionStore := store.NewMongoSessionStore(db)
	services.AppUploadService = services.NewUploadService(sessionStore, sink)
	log.Println("UploadService initialized")

	controllers.RegisterRoutes(router)

	port := os.Getenv("PORT")
	if port == "" {
		port = "80"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if err := client.Disconnect(shutdownCtx); err != nil {
		log.Printf("Error disconnecting from MongoDB: %v", err)
	}

	log.Println("Server exited gracefully")
}

// buildChunkSink wires the Telegram chunk sink when bot credentials are
// configured. Without them the service runs metadata-only: chunk bytes are
// accounted but not stored, and uploads wait for an external collaborator to
// confirm completion.
func buildChunkSink(db *mongo.Database) storage.ChunkSink {
	botTokensStr := os.Getenv("BOT_TOKENS")
	if botTokensStr == "" {
		log.Println("[WARN] BOT_TOKENS not set, running without a chunk sink")
		return nil
	}

	botTokens := strings.Split(botTokensStr, ",")
	for i := range botTokens {
		botTokens[i] = strings.TrimSpace(botTokens[i])
	}

	groupIDStr := os.Getenv("TELEGRAM_GROUP_ID")
	groupID, err := strconv.ParseInt(groupIDStr, 10, 64)
	if err != nil {
		log.Fatalf("Invalid TELEGRAM_GROUP_ID: %v", err)
	}

	pool, err := bot.NewPool(botTokens)
	if err != nil {
		log.Fatalf("Failed to initialize bot pool: %v", err)
	}
	log.Printf("Bot pool initialized with %d bots", pool.Size())

	return storage.NewTelegramSink(pool, db, groupID)
}
