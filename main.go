package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"

	"SAMS-backend/internal/platform/auth"
	"SAMS-backend/internal/platform/db"
	"SAMS-backend/internal/platform/notify"
	"SAMS-backend/internal/tracking/history"
	"SAMS-backend/internal/tracking/inventory"
	"SAMS-backend/internal/tracking/items"
	"SAMS-backend/internal/tracking/locks"
	"SAMS-backend/internal/tracking/requests"
)

func main() {
	// 設定読み込み
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	if cfg.Mode != "dev" && cfg.Mode != "release" {
		fmt.Println("Usage: set mode to dev or release in config/config.yaml")
		return
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	secret := []byte(cfg.Auth.Secret)
	authSvc := auth.NewService(conn, secret, time.Duration(cfg.Auth.TokenTTL)*time.Hour)
	notifier := notify.NewLogNotifier()
	lockSvc := locks.NewService(locks.NewStore(conn), cfg.Lock.TTLMinutes)
	histSvc := history.NewService(conn)
	reqSvc := requests.NewService(requests.NewStore(conn), authSvc, notifier)
	itemSvc := items.NewService(conn, lockSvc, histSvc, authSvc, notifier)
	invSvc := inventory.NewService(conn)

	// /api/v1
	api := r.Group("/api/v1")
	auth.RegisterRoutes(api, authSvc)

	authed := api.Group("")
	authed.Use(auth.RequireAuth(secret))
	items.RegisterRoutes(authed, itemSvc)
	requests.RegisterRoutes(authed, reqSvc)
	locks.RegisterRoutes(authed, lockSvc)
	history.RegisterRoutes(authed, histSvc)

	// 棚卸しは社内ロールのみ
	internalOnly := api.Group("")
	internalOnly.Use(auth.RequireAuth(secret), auth.RequireRoles(auth.RoleAdmin, auth.RoleManager, auth.RoleProper))
	inventory.RegisterRoutes(internalOnly, invSvc)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: r,
	}

	var certFile, keyFile string
	if mode == "dev" {
		certFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Key)
	} else {
		certFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Key)
	}

	go func() {
		log.Printf("[INFO] listening on https://0.0.0.0%s", cfg.Listen)
		if err := srv.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
