package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"fileconverter/config"
	"fileconverter/formats"
	"fileconverter/notify"
	"fileconverter/server"
	"fileconverter/services"
	"fileconverter/worker"
)

func main() {
	log.Println("Starting file conversion service...")

	cfg := config.Load()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis successfully")

	dbSvc, err := services.NewDatabaseService(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbSvc.Close()
	log.Println("Connected to database successfully")

	s3Svc := services.NewS3Service(cfg)
	hub := notify.NewHub()

	ffmpegSvc := services.NewFFmpegService(cfg.FFmpegBin)
	docSvc := services.NewDocServerService(cfg.DocServerURL)
	converters := map[formats.Capability]formats.ConvertFunc{
		formats.CapImage:      ffmpegSvc.ConvertImage,
		formats.CapVideo:      ffmpegSvc.ConvertVideo,
		formats.CapVideoToGIF: ffmpegSvc.ConvertVideoToGIF,
		formats.CapDocument:   docSvc.Convert,
		formats.CapImageToPDF: docSvc.Convert,
	}

	executor := worker.NewExecutor(s3Svc, converters)
	queue := worker.NewRedisQueue(redisClient, cfg.PendingQueue, cfg.ProcessingQueue)
	pool := worker.NewPool(cfg, queue, dbSvc, executor, hub)
	sweeper := worker.NewSweeper(dbSvc, s3Svc)
	jobSvc := services.NewConversionService(dbSvc, s3Svc, pool, cfg.MaxUploadSize)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			pool.StartWorker(ctx, workerID)
		}(i)
	}
	log.Printf("Started %d conversion workers", cfg.WorkerCount)

	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.RecoveryLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.SweepLoop(ctx, cfg.SweepInterval, cfg.RetentionDays)
	}()

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.New(jobSvc, hub, cfg.MaxUploadSize).Router(),
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Printf("Listening on Redis queue: %s", cfg.PendingQueue)
	log.Println("Service is ready to process conversions")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping workers...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All workers stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Println("Shutdown timeout, forcing exit")
	}

	redisClient.Close()
	log.Println("Conversion service stopped")
}
