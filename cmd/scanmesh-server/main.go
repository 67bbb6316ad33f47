package main

import (
	"flag"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/unixpickle/essentials"

	"scanmesh/pkg/api"
	"scanmesh/pkg/config"
	"scanmesh/pkg/lock"
)

// redisLockTTL bounds how long a crashed server keeps an output name locked.
// Live holders refresh it.
const redisLockTTL = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	releaseMode := flag.Bool("release", false, "Run in release mode")
	uploadDir := flag.String("upload-dir", "", "Directory for uploaded inputs (overrides config)")
	outputDir := flag.String("output-dir", "", "Directory for generated models (overrides config)")
	redisAddress := flag.String("redis-address", "", "Redis server for cross-instance output locks")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	essentials.Must(err)

	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *uploadDir != "" {
		cfg.Server.UploadDir = *uploadDir
	}
	if *outputDir != "" {
		cfg.Server.OutputDir = *outputDir
	}
	if *redisAddress != "" {
		cfg.Server.RedisAddress = *redisAddress
	}

	if cfg.Output.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	if *releaseMode || cfg.Server.Release {
		log.Info("[Main] Starting gin in release mode!")
		gin.SetMode(gin.ReleaseMode)
	}

	var locker lock.Locker
	if cfg.Server.RedisAddress != "" {
		pool := lock.NewRedisPool(cfg.Server.RedisAddress, cfg.Server.RedisMaxConnections)
		defer pool.Close()

		r := lock.NewRedis(pool, redisLockTTL)
		if err := r.Ping(); err != nil {
			log.Fatalf("[Main] Couldn't reach Redis at %s: %v", cfg.Server.RedisAddress, err)
		}
		log.Infof("[Main] Using Redis output locks at %s", cfg.Server.RedisAddress)
		locker = r
	} else {
		locker = lock.NewLocal()
	}

	s, err := api.NewServer(cfg, locker)
	if err != nil {
		log.Fatalf("[Main] Couldn't start server: %v", err)
	}

	log.Infof("[Main] Upload folder: %s", cfg.Server.UploadDir)
	log.Infof("[Main] Output folder: %s", cfg.Server.OutputDir)
	if err := s.Run(); err != nil {
		log.Fatalf("[Main] Server stopped: %v", err)
	}
}
