package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/casino-services/configs"
	settings "github.com/avvvet/casino-services/internal/casino/config"
	"github.com/avvvet/casino-services/internal/casino/rng"
	"github.com/avvvet/casino-services/internal/casino/robot"
	"github.com/avvvet/casino-services/internal/comm"
	natscli "github.com/avvvet/casino-services/internal/nats"
)

const SERVICE_NAME = "robot"

func init() {
	instanceId := "001"
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	log.Printf("Starting Robot Service...")
	cfg := settings.Load()

	// Connect to NATS
	nc, err := natscli.Connect(cfg.NatsURL, cfg.NatsToken, SERVICE_NAME+" service")
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Conn.Close()
	log.Infof("NATS connected at %s", nc.Url)

	rcfg := robot.DefaultConfig()
	rcfg.Count = cfg.RobotCount
	fleet := robot.NewFleet(rcfg, nc.Conn, rng.NewFromTime())

	subEvents, err := nc.Conn.Subscribe(comm.SubjectEvents, func(m *nats.Msg) {
		fleet.HandleEvent(m.Data)
	})
	if err != nil {
		log.Fatalf("subscribe error: %v", err)
	}
	subPlayers, err := nc.Conn.Subscribe(comm.SubjectPlayers, func(m *nats.Msg) {
		fleet.HandlePlayer(m.Subject, m.Data)
	})
	if err != nil {
		log.Fatalf("subscribe error: %v", err)
	}

	fleet.Register()
	log.Infof("%d robots playing", rcfg.Count)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	subEvents.Unsubscribe()
	subPlayers.Unsubscribe()
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
